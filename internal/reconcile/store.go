package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

// Store is the persistence boundary: a transactional store with
// create/field-update/delete-by-identifier semantics and cascade delete
// from a match to its owned events and stats rows. Implementations must be
// safe for concurrent use; the engine serializes writes per match above
// this interface.
type Store interface {
	// CreateMatch persists a new match aggregate, including roster and
	// zeroed stats rows. Returns domain.ErrMatchExists when the ID is
	// already present.
	CreateMatch(ctx context.Context, m *domain.Match) error

	// GetMatch fetches the full aggregate: match fields, roster, stats and
	// event log. Returns domain.ErrMatchNotFound when absent.
	GetMatch(ctx context.Context, id uuid.UUID) (*domain.Match, error)

	// ListMatches returns all known matches, most recently started first.
	ListMatches(ctx context.Context) ([]*domain.Match, error)

	// DeleteMatch removes a match and cascades to its events and stats.
	DeleteMatch(ctx context.Context, id uuid.UUID) error

	// InsertEvent appends one immutable event row.
	InsertEvent(ctx context.Context, ev domain.MatchEvent) error

	// DeleteEvents physically removes every event of a match.
	DeleteEvents(ctx context.Context, matchID uuid.UUID) error

	// AddRosterEntry inserts a roster entry plus its zeroed stats row.
	AddRosterEntry(ctx context.Context, matchID uuid.UUID, p domain.Player) error

	// UpdateScore patches the score fields only.
	UpdateScore(ctx context.Context, matchID uuid.UUID, homeScore, awayScore int) error

	// SaveAggregates writes back the derived state: status, score, awards
	// and the full replacement set of stats rows.
	SaveAggregates(ctx context.Context, m *domain.Match) error

	// AllStats returns every stored stats row across matches, for career
	// leaderboards.
	AllStats(ctx context.Context) ([]domain.PlayerMatchStats, error)
}
