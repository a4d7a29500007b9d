package cache

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how many claims are taken between scans for expired ones
const sweepEvery = 1024

// MemoryProcessedEvents keeps claims in a map. Expired claims are swept
// lazily from Claim, so no goroutine has to be stopped.
type MemoryProcessedEvents struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	claims int
	now    func() time.Time
}

// NewMemoryProcessedEvents creates an empty claim set
func NewMemoryProcessedEvents() *MemoryProcessedEvents {
	return &MemoryProcessedEvents{expiry: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryProcessedEvents) Claim(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, held := s.expiry[eventID]; held && now.Before(until) {
		return false, nil
	}
	s.expiry[eventID] = now.Add(ttl)

	s.claims++
	if s.claims%sweepEvery == 0 {
		s.sweep(now)
	}
	return true, nil
}

func (s *MemoryProcessedEvents) Release(_ context.Context, eventID string) error {
	s.mu.Lock()
	delete(s.expiry, eventID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryProcessedEvents) Close() error { return nil }

// Len returns the number of claims held, expired ones not yet swept included
func (s *MemoryProcessedEvents) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *MemoryProcessedEvents) sweep(now time.Time) {
	for id, until := range s.expiry {
		if !now.Before(until) {
			delete(s.expiry, id)
		}
	}
}
