package pipeline

import (
	"context"
	"sync"
	"time"
)

// DedupResult is the outcome of a check-and-mark call.
type DedupResult int

const (
	ResultNew DedupResult = iota
	ResultDuplicate
)

func (r DedupResult) String() string {
	if r == ResultNew {
		return "new"
	}
	return "duplicate"
}

// DedupEntry records when a fingerprint was first and last observed.
type DedupEntry struct {
	CanonicalID string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Index is the dedup registry. CheckAndMark must be atomic with respect to
// concurrent callers: for one fingerprint, exactly one caller ever sees New.
// On Duplicate the entry's last-seen timestamp advances, so repeated scraping
// of an unchanged listing stays idempotent while staleness remains trackable.
type Index interface {
	CheckAndMark(ctx context.Context, fingerprint, canonicalID string) (DedupResult, error)

	// Forget drops a fingerprint so a later run can claim it again. Used
	// when the sink write behind a New claim ultimately fails.
	Forget(ctx context.Context, fingerprint string) error

	// Entry returns the recorded entry for a fingerprint, if present.
	Entry(ctx context.Context, fingerprint string) (DedupEntry, bool, error)

	Close() error
}

// MemoryIndex is the in-process Index backend. Entries live for the process
// lifetime; eviction is the Redis backend's concern.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]*DedupEntry
}

// NewMemoryIndex creates an empty in-memory dedup index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]*DedupEntry)}
}

// CheckAndMark claims the fingerprint under a single critical section.
func (m *MemoryIndex) CheckAndMark(ctx context.Context, fingerprint, canonicalID string) (DedupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, ok := m.entries[fingerprint]; ok {
		entry.LastSeenAt = now
		return ResultDuplicate, nil
	}

	m.entries[fingerprint] = &DedupEntry{
		CanonicalID: canonicalID,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	return ResultNew, nil
}

// Forget drops the fingerprint.
func (m *MemoryIndex) Forget(ctx context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, fingerprint)
	return nil
}

// Entry returns a copy of the entry for the fingerprint.
func (m *MemoryIndex) Entry(ctx context.Context, fingerprint string) (DedupEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[fingerprint]
	if !ok {
		return DedupEntry{}, false, nil
	}
	return *entry, true, nil
}

// Len reports the number of recorded fingerprints.
func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close is a no-op for the memory backend.
func (m *MemoryIndex) Close() error {
	return nil
}
