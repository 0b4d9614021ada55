// Package store provides persistent storage for persona-bot using SQLite.
//
// # Architecture
//
// The Store interface covers the two record collections the bot keeps:
//
//   - Session: per-user conversation state (which flow, which agent)
//   - Agent: per-user chat persona with instructions and a transcript
//
// SQLiteStore implements Store on top of modernc.org/sqlite. MockStore is an
// in-memory implementation with the same semantics for unit tests.
//
// # Semantics
//
// Every operation is independent. There is no multi-record atomicity and the
// last write wins. Agents are unique per (owner, name); PutAgent on an
// existing pair replaces the older record, keeping its ID and dropping its
// transcript. DeleteAgent on a missing agent succeeds.
//
// Sessions are never deleted. A session whose State is StateNone is the
// "main menu" state.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// agent_messages rows reference agents(id) with ON DELETE CASCADE, so
// deleting an agent removes its transcript.
//
// # Errors
//
//   - ErrNotFound: requested record does not exist
//   - ErrEmptyName: agent written without a name
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(path) with a
// t.TempDir() path for integration tests.
package store
