// Package memstore provides an in-memory implementation of the
// reconciliation store, used for the embedded on-device mode and as the
// test double throughout the repo. Aggregates are deep-copied on the way
// in and out so callers never share mutable state with the store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

// Store is a map-backed match store with cascade-delete semantics
type Store struct {
	mu      sync.RWMutex
	matches map[uuid.UUID]*domain.Match
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{matches: make(map[uuid.UUID]*domain.Match)}
}

// CreateMatch persists a new match aggregate
func (s *Store) CreateMatch(_ context.Context, m *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; ok {
		return domain.ErrMatchExists
	}
	s.matches[m.ID] = cloneMatch(m)
	return nil
}

// GetMatch returns a copy of the full match aggregate
func (s *Store) GetMatch(_ context.Context, id uuid.UUID) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

// ListMatches returns all matches, most recently started first
func (s *Store) ListMatches(_ context.Context) ([]*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, cloneMatch(m))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// DeleteMatch removes a match and, with it, its owned events and stats
func (s *Store) DeleteMatch(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return domain.ErrMatchNotFound
	}
	delete(s.matches, id)
	return nil
}

// InsertEvent appends one event row to its match
func (s *Store) InsertEvent(_ context.Context, ev domain.MatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[ev.MatchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	m.Log.Append(ev)
	return nil
}

// DeleteEvents physically empties a match's event log
func (s *Store) DeleteEvents(_ context.Context, matchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	m.Log.RemoveAll()
	return nil
}

// AddRosterEntry inserts a roster entry plus a zeroed stats row
func (s *Store) AddRosterEntry(_ context.Context, matchID uuid.UUID, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	m.AddPlayer(p)
	return nil
}

// UpdateScore patches the score fields only
func (s *Store) UpdateScore(_ context.Context, matchID uuid.UUID, homeScore, awayScore int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	m.HomeScore = homeScore
	m.AwayScore = awayScore
	return nil
}

// SaveAggregates writes back derived state: status, score, awards, stats
func (s *Store) SaveAggregates(_ context.Context, m *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.matches[m.ID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	stored.Status = m.Status
	stored.HomeScore = m.HomeScore
	stored.AwayScore = m.AwayScore
	if m.Awards != nil {
		awards := *m.Awards
		stored.Awards = &awards
	}
	stored.Roster = append([]domain.Player(nil), m.Roster...)
	stored.Stats = append([]domain.PlayerMatchStats(nil), m.Stats...)
	return nil
}

// AllStats returns every stats row across matches
func (s *Store) AllStats(_ context.Context) ([]domain.PlayerMatchStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PlayerMatchStats
	for _, m := range s.matches {
		out = append(out, m.Stats...)
	}
	return out, nil
}

func cloneMatch(m *domain.Match) *domain.Match {
	out := *m
	out.Roster = append([]domain.Player(nil), m.Roster...)
	out.Stats = append([]domain.PlayerMatchStats(nil), m.Stats...)
	if m.Awards != nil {
		awards := *m.Awards
		out.Awards = &awards
	}
	out.Log = domain.NewEventLog()
	if m.Log != nil {
		for _, ev := range m.Log.EventsSorted() {
			out.Log.Append(ev)
		}
	}
	return &out
}
