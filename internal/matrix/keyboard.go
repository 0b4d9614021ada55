// ABOUTME: Pending button keyboards and per-user locks for the Matrix bridge
// ABOUTME: Matrix has no inline buttons, so choices are numbered and answered by number

package matrix

import (
	"sync"
	"time"

	"github.com/2389/persona-bot/internal/conversation"
	"github.com/2389/persona-bot/internal/dedupe"
)

// keyboards remembers the button tokens last offered per (room, user).
type keyboards struct {
	cache *dedupe.Cache[[]string]
}

func newKeyboards(ttl time.Duration, maxSize int) *keyboards {
	return &keyboards{cache: dedupe.New[[]string](ttl, maxSize)}
}

// Set replaces the keyboard for key. No buttons clears it.
func (k *keyboards) Set(key string, buttons []conversation.Button) {
	if len(buttons) == 0 {
		k.cache.Delete(key)
		return
	}
	tokens := make([]string, len(buttons))
	for i, btn := range buttons {
		tokens[i] = btn.Data
	}
	k.cache.Put(key, tokens)
}

// Pick returns the token of the 1-based choice n.
func (k *keyboards) Pick(key string, n int) (string, bool) {
	tokens, ok := k.cache.Get(key)
	if !ok || n < 1 || n > len(tokens) {
		return "", false
	}
	return tokens[n-1], true
}

func (k *keyboards) Close() {
	k.cache.Close()
}

// keyedMutex serializes work per key while letting different keys run
// concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
