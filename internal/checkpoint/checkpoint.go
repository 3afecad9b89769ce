// Package checkpoint persists scan progress so an interrupted scan can be
// resumed.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCorrupt is returned by Load when the stored checkpoint cannot be used.
var ErrCorrupt = errors.New("corrupt checkpoint")

// Checkpoint is the persisted progress of a scan. Cursor is the index of
// the first host not yet processed; every host before it is done.
type Checkpoint struct {
	Cursor          int       `json:"cursor"`
	Total           int       `json:"total"`
	AccessibleHosts []string  `json:"accessible_hosts"`
	Timestamp       time.Time `json:"timestamp"`
	ScanID          string    `json:"scan_id,omitempty"`
}

// Validate checks the invariants a loaded checkpoint must hold.
func (c *Checkpoint) Validate() error {
	if c.Total < 0 || c.Cursor < 0 || c.Cursor > c.Total {
		return fmt.Errorf("%w: cursor %d outside [0, %d]", ErrCorrupt, c.Cursor, c.Total)
	}
	return nil
}

// Store saves, loads and clears a single checkpoint.
type Store interface {
	// Save replaces the stored checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
	// Load returns the stored checkpoint, or nil, nil when there is none.
	Load(ctx context.Context) (*Checkpoint, error)
	// Clear removes the stored checkpoint. Clearing an absent checkpoint
	// is not an error.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the checkpoint in memory. It is used when persistence
// is disabled and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	cp    *Checkpoint
	saves int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = clone(cp)
	m.saves++
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cp == nil {
		return nil, nil
	}
	return clone(m.cp), nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = nil
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func clone(cp *Checkpoint) *Checkpoint {
	if cp == nil {
		return nil
	}
	c := *cp
	c.AccessibleHosts = append([]string(nil), cp.AccessibleHosts...)
	return &c
}
