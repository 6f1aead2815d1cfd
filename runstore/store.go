// Package runstore keeps sync run records in memory for status queries.
package runstore

import (
	"sync"
	"time"

	"github.com/use-agent/noticesync/models"
)

// entry holds a run record and when it was last written.
type entry struct {
	run       models.Run
	updatedAt time.Time
}

// Store is an in-memory set of run records bounded by count and age.
// Running records are never evicted. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Store. A background goroutine drops finished records older
// than ttl every ttl/4 (at most every 5 minutes) until Close.
func New(maxEntries int, ttl time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Store{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}

	go s.cleanupLoop()
	return s
}

// Put stores a copy of run, replacing any record with the same ID. When
// the store is full the oldest finished record makes room.
func (s *Store) Put(run models.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.store[run.ID]; !exists && len(s.store) >= s.maxEntries {
		s.evictOldestFinishedLocked()
	}
	s.store[run.ID] = &entry{run: run, updatedAt: time.Now()}
}

// Update applies fn to the stored record. It reports false when id is unknown.
func (s *Store) Update(id string, fn func(*models.Run)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store[id]
	if !ok {
		return false
	}
	fn(&e.run)
	e.updatedAt = time.Now()
	return true
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (models.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.store[id]
	if !ok {
		return models.Run{}, false
	}
	return e.run, true
}

// Running returns the ID of an unfinished run for identity, if any.
func (s *Store) Running(identity string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, e := range s.store {
		if e.run.Identity == identity && !e.run.Finished() {
			return id, true
		}
	}
	return "", false
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.store)
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) evictOldestFinishedLocked() {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, e := range s.store {
		if !e.run.Finished() {
			continue
		}
		if oldestID == "" || e.updatedAt.Before(oldestAt) {
			oldestID, oldestAt = id, e.updatedAt
		}
	}
	if oldestID != "" {
		delete(s.store, oldestID)
	}
}

// expire drops finished records last written before cutoff.
func (s *Store) expire(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.store {
		if e.run.Finished() && e.updatedAt.Before(cutoff) {
			delete(s.store, id)
			n++
		}
	}
	return n
}

func (s *Store) cleanupLoop() {
	interval := s.ttl / 4
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.expire(now.Add(-s.ttl))
		}
	}
}
