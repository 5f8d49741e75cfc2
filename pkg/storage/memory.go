package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HatiCode/reefcast/pkg/sst"
)

// MemoryStore implements an in-memory store for series snapshots.
// It is safe for concurrent use by multiple goroutines.
//
// If TTL is configured, a background goroutine removes snapshots whose
// FetchedAt is older than the TTL.
type MemoryStore struct {
	mu            sync.RWMutex
	snapshots     map[string]sst.Snapshot
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStore creates a new in-memory snapshot store with no TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]sst.Snapshot),
	}
}

// NewMemoryStoreWithTTL creates an in-memory store that evicts snapshots
// older than ttl every cleanupInterval (default one minute).
//
// Stop must be called when the store is no longer needed.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) (*MemoryStore, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("memory store ttl must be positive, got %s", ttl)
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		snapshots:     make(map[string]sst.Snapshot),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store, nil
}

// Stop shuts down the cleanup goroutine and blocks until it exits.
// Safe to call more than once, and on a store without TTL.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
		s.cleanupTicker.Stop()
	})
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.evictBefore(time.Now().Add(-s.ttl))
		case <-s.stopCleanup:
			return
		}
	}
}

// evictBefore removes snapshots fetched before cutoff.
func (s *MemoryStore) evictBefore(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, snap := range s.snapshots {
		if snap.FetchedAt.Before(cutoff) {
			delete(s.snapshots, id)
		}
	}
}

// Put stores a snapshot, replacing any existing snapshot for the location.
func (s *MemoryStore) Put(ctx context.Context, snapshot sst.Snapshot) error {
	if snapshot.LocationID == "" {
		return fmt.Errorf("snapshot location id cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.LocationID] = snapshot
	return nil
}

// GetLatest retrieves the snapshot for a location. found is false when
// nothing is stored.
func (s *MemoryStore) GetLatest(ctx context.Context, locationID string) (sst.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return sst.Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, found := s.snapshots[locationID]
	return snapshot, found, nil
}

// Len returns the number of snapshots currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes the snapshot for a location and reports whether one existed.
func (s *MemoryStore) Delete(locationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.snapshots[locationID]
	delete(s.snapshots, locationID)
	return existed
}
