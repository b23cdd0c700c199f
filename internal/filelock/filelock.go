// Package filelock provides named exclusive locks for files on the shared
// store.
//
// A lock on a path combines an in-process mutex keyed by the cleaned path with
// an OS advisory lock on a sidecar "<path>.lock" file, so writers in the same
// process and writers in other processes both serialize. The sidecar is used
// instead of the data file itself because rotation renames the data file.
package filelock

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Suffix is appended to a data path to name its lock file.
const Suffix = ".lock"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out per-path exclusive locks.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock blocks until the caller holds the exclusive lock for path. The
// returned function releases it and must be called exactly once.
func (l *Locker) Lock(path string) (func() error, error) {
	key := filepath.Clean(path)

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	fl := flock.New(key + Suffix)
	if err := fl.Lock(); err != nil {
		e.mu.Unlock()
		l.release(key, e)
		return nil, fmt.Errorf("failed to acquire file lock %s: %w", key+Suffix, err)
	}

	return func() error {
		err := fl.Unlock()
		e.mu.Unlock()
		l.release(key, e)
		if err != nil {
			return fmt.Errorf("failed to release file lock %s: %w", key+Suffix, err)
		}
		return nil
	}, nil
}

// WithLock runs fn while holding the lock for path. The lock is released on
// every exit path, including a panic in fn.
func (l *Locker) WithLock(path string, fn func() error) (err error) {
	unlock, err := l.Lock(path)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn()
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Held returns the number of paths with a holder or waiter. Used in tests.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
