package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
	"github.com/xinchenjiangau/PickUpSoccer/internal/memstore"
	"github.com/xinchenjiangau/PickUpSoccer/internal/protocol"
)

func testEngine() (*Engine, *memstore.Store) {
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, logger), store
}

func startCommand(matchID uuid.UUID, players []protocol.RosterPlayer) protocol.StartMatch {
	return protocol.StartMatch{
		MatchID:         matchID,
		HomeTeamName:    "Red Bibs",
		AwayTeamName:    "Blue Bibs",
		DurationMinutes: 60,
		Players:         players,
	}
}

func testPlayers() []protocol.RosterPlayer {
	return []protocol.RosterPlayer{
		{ID: uuid.New(), Name: "Mateo", IsHomeTeam: true},
		{ID: uuid.New(), Name: "Lucas", IsHomeTeam: true},
		{ID: uuid.New(), Name: "Diego", IsHomeTeam: false},
		{ID: uuid.New(), Name: "Marco", IsHomeTeam: false},
	}
}

func TestStartMatchCreatesShadow(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()

	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusInProgress, m.Status)
	assert.Len(t, m.Roster, 4)
	assert.Len(t, m.Stats, 4)
	assert.Equal(t, domain.TeamSideHome, m.Roster[0].Side)
	assert.Equal(t, domain.TeamSideAway, m.Roster[2].Side)
	assert.Equal(t, StateLive, engine.LifecycleState(matchID))
}

func TestStartMatchIgnoredWhenShadowExists(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()

	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))
	// Second delivery carries a different roster; the existing shadow wins
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players[:1])))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Len(t, m.Roster, 4)
}

func TestNewEventAppendsAndRecomputes(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID:     matchID,
		EventKind:   domain.EventKindGoal,
		Timestamp:   time.Now(),
		PrimaryID:   players[0].ID,
		SecondaryID: players[1].ID,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Log.Len())
	assert.Equal(t, 1, m.HomeScore)
	assert.Equal(t, 0, m.AwayScore)

	scorer := m.StatsFor(players[0].ID)
	require.NotNil(t, scorer)
	assert.Equal(t, 1, scorer.Goals)
	assistant := m.StatsFor(players[1].ID)
	require.NotNil(t, assistant)
	assert.Equal(t, 1, assistant.Assists)

	require.NotNil(t, m.Awards)
	assert.Equal(t, players[0].ID, m.Awards.TopScorer)
	assert.Equal(t, StateLive, engine.LifecycleState(matchID))
}

func TestNewEventSideComesFromRoster(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	// An away player's goal lands on the away score no matter what the
	// sender thought the side was; the wire carries no side field at all.
	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID:   matchID,
		EventKind: domain.EventKindGoal,
		Timestamp: time.Now(),
		PrimaryID: players[2].ID,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.HomeScore)
	assert.Equal(t, 1, m.AwayScore)
}

func TestNewEventUnknownMatchDropped(t *testing.T) {
	engine, _ := testEngine()
	err := engine.Apply(context.Background(), protocol.NewEvent{
		MatchID:   uuid.New(),
		EventKind: domain.EventKindGoal,
		PrimaryID: uuid.New(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
	assert.True(t, domain.IsDroppableError(err))
}

func TestNewEventUnknownPlayerDropped(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, testPlayers())))

	err := engine.Apply(ctx, protocol.NewEvent{
		MatchID:   matchID,
		EventKind: domain.EventKindGoal,
		PrimaryID: uuid.New(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Log.Len())
}

func TestNewEventAssistantOnlyOnGoals(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID:     matchID,
		EventKind:   domain.EventKindSave,
		Timestamp:   time.Now(),
		PrimaryID:   players[3].ID,
		SecondaryID: players[2].ID,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	events := m.Log.EventsSorted()
	require.Len(t, events, 1)
	assert.Equal(t, uuid.Nil, events[0].SecondaryID)
}

func wireEvents(players []protocol.RosterPlayer, base time.Time) []protocol.WireEvent {
	return []protocol.WireEvent{
		{EventKind: domain.EventKindGoal, Timestamp: base, IsHomeTeam: true, PrimaryID: players[0].ID, SecondaryID: players[1].ID},
		{EventKind: domain.EventKindGoal, Timestamp: base.Add(5 * time.Minute), IsHomeTeam: false, PrimaryID: players[2].ID},
		{EventKind: domain.EventKindSave, Timestamp: base.Add(8 * time.Minute), IsHomeTeam: false, PrimaryID: players[3].ID},
		{EventKind: domain.EventKindGoal, Timestamp: base.Add(20 * time.Minute), IsHomeTeam: true, PrimaryID: players[0].ID},
	}
}

func TestMatchEndedReplacesLogAndFinishes(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	base := time.Now().Add(-time.Hour)
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	// Two events arrive live; the rest were recorded out of range
	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID: matchID, EventKind: domain.EventKindGoal, Timestamp: base, PrimaryID: players[0].ID,
	}))
	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID: matchID, EventKind: domain.EventKindSave, Timestamp: base.Add(8 * time.Minute), PrimaryID: players[3].ID,
	}))

	// The final payload score disagrees with the log on purpose; the
	// replayed log is authoritative.
	require.NoError(t, engine.Apply(ctx, protocol.MatchEnded{
		MatchID:   matchID,
		HomeScore: 9,
		AwayScore: 9,
		Events:    wireEvents(players, base),
		FromWatch: true,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusFinished, m.Status)
	assert.Equal(t, 4, m.Log.Len())
	assert.Equal(t, 2, m.HomeScore)
	assert.Equal(t, 1, m.AwayScore)
	assert.Equal(t, StateFinished, engine.LifecycleState(matchID))

	scorer := m.StatsFor(players[0].ID)
	require.NotNil(t, scorer)
	assert.Equal(t, 2, scorer.Goals)
	assert.Equal(t, 60, scorer.MinutesPlayed)
}

func TestMatchEndedIsIdempotent(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	base := time.Now().Add(-time.Hour)
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	ended := protocol.MatchEnded{
		MatchID:   matchID,
		HomeScore: 2,
		AwayScore: 1,
		Events:    wireEvents(players, base),
		FromWatch: true,
	}
	require.NoError(t, engine.Apply(ctx, ended))
	first, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)

	require.NoError(t, engine.Apply(ctx, ended))
	second, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)

	assert.Equal(t, first.Log.Len(), second.Log.Len())
	assert.Equal(t, first.HomeScore, second.HomeScore)
	assert.Equal(t, first.AwayScore, second.AwayScore)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestMatchEndedEmptyLogResetsAggregates(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID: matchID, EventKind: domain.EventKindGoal, Timestamp: time.Now(), PrimaryID: players[0].ID,
	}))

	// A zero-event final sync is a legitimate reset, not an error
	require.NoError(t, engine.Apply(ctx, protocol.MatchEnded{
		MatchID: matchID,
		Events:  nil,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusFinished, m.Status)
	assert.Equal(t, 0, m.Log.Len())
	assert.Equal(t, 0, m.HomeScore)
	assert.Equal(t, 0, m.AwayScore)
	for _, row := range m.Stats {
		assert.Zero(t, row.Goals)
		assert.Zero(t, row.Saves)
	}
}

func TestMatchEndedSkipsUnresolvableEntries(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	base := time.Now()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	events := []protocol.WireEvent{
		{EventKind: domain.EventKindGoal, Timestamp: base, IsHomeTeam: true, PrimaryID: players[0].ID},
		{EventKind: domain.EventKindGoal, Timestamp: base.Add(time.Minute), IsHomeTeam: true, PrimaryID: uuid.New()},
	}
	require.NoError(t, engine.Apply(ctx, protocol.MatchEnded{
		MatchID: matchID,
		Events:  events,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Log.Len())
	assert.Equal(t, 1, m.HomeScore)
}

func TestNewEventRejectedAfterFinish(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))
	require.NoError(t, engine.Apply(ctx, protocol.MatchEnded{MatchID: matchID}))

	err := engine.Apply(ctx, protocol.NewEvent{
		MatchID:   matchID,
		EventKind: domain.EventKindGoal,
		PrimaryID: players[0].ID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMatchFinished)

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Log.Len())
}

func TestMatchEndedAllowedAfterFinish(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	base := time.Now()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))
	require.NoError(t, engine.Apply(ctx, protocol.MatchEnded{MatchID: matchID}))

	// A late full sync from the other device must still converge
	require.NoError(t, engine.Apply(ctx, protocol.MatchEnded{
		MatchID: matchID,
		Events:  wireEvents(players, base),
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Log.Len())
	assert.Equal(t, 2, m.HomeScore)
}

func TestScoreUpdatePatchesScoreOnly(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	require.NoError(t, engine.Apply(ctx, protocol.ScoreUpdate{
		MatchID:   matchID,
		HomeScore: 3,
		AwayScore: 2,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 3, m.HomeScore)
	assert.Equal(t, 2, m.AwayScore)
	assert.Equal(t, 0, m.Log.Len())
	assert.Equal(t, domain.MatchStatusInProgress, m.Status)
}

func TestScoreUpdateUnknownMatchDropped(t *testing.T) {
	engine, _ := testEngine()
	err := engine.Apply(context.Background(), protocol.ScoreUpdate{MatchID: uuid.New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}

func TestNewPlayerIdempotent(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	late := protocol.NewPlayer{
		MatchID:    matchID,
		PlayerID:   uuid.New(),
		Name:       "Enzo",
		IsHomeTeam: false,
	}
	require.NoError(t, engine.Apply(ctx, late))
	require.NoError(t, engine.Apply(ctx, late))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Len(t, m.Roster, 5)
	row := m.StatsFor(late.PlayerID)
	require.NotNil(t, row)
	assert.Equal(t, domain.TeamSideAway, row.Side)
	assert.Zero(t, row.Goals)
}

func TestDeleteMatchRemovesReplica(t *testing.T) {
	engine, store := testEngine()
	ctx := context.Background()
	matchID := uuid.New()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, testPlayers())))

	require.NoError(t, engine.DeleteMatch(ctx, matchID))

	_, err := store.GetMatch(ctx, matchID)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
	assert.Equal(t, StateUnsynced, engine.LifecycleState(matchID))
}

// flakyStore fails InsertEvent a configured number of times before
// delegating, to exercise the retry-once persistence policy.
type flakyStore struct {
	*memstore.Store
	failures int
}

func (s *flakyStore) InsertEvent(ctx context.Context, ev domain.MatchEvent) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("transient write failure")
	}
	return s.Store.InsertEvent(ctx, ev)
}

func TestPersistRetriesOnceThenSucceeds(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), failures: 1}
	engine := NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID:   matchID,
		EventKind: domain.EventKindGoal,
		PrimaryID: players[0].ID,
	}))

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Log.Len())
}

func TestPersistGivesUpAfterSecondFailure(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), failures: 2}
	engine := NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	matchID := uuid.New()
	players := testPlayers()
	require.NoError(t, engine.Apply(ctx, startCommand(matchID, players)))

	err := engine.Apply(ctx, protocol.NewEvent{
		MatchID:   matchID,
		EventKind: domain.EventKindGoal,
		PrimaryID: players[0].ID,
	})
	require.Error(t, err)

	m, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Log.Len())
	// The replica recovers: the next event applies cleanly
	require.NoError(t, engine.Apply(ctx, protocol.NewEvent{
		MatchID:   matchID,
		EventKind: domain.EventKindGoal,
		PrimaryID: players[0].ID,
	}))
	assert.Equal(t, StateLive, engine.LifecycleState(matchID))
}
