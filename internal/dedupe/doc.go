// Package dedupe provides a generic time- and size-bounded cache.
//
// The Matrix bridge uses it twice: as a set of seen event IDs so a redelivered
// sync event is handled once, and as a short-lived map from (room, user) to
// the button keyboard last shown to that user.
package dedupe
