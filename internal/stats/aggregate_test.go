package stats

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

func testRoster() []domain.Player {
	return []domain.Player{
		{ID: uuid.New(), Name: "Mateo", Side: domain.TeamSideHome},
		{ID: uuid.New(), Name: "Lucas", Side: domain.TeamSideHome},
		{ID: uuid.New(), Name: "Diego", Side: domain.TeamSideAway},
		{ID: uuid.New(), Name: "Marco", Side: domain.TeamSideAway},
	}
}

func goalEvent(matchID uuid.UUID, scorer, assistant domain.Player, ts time.Time) domain.MatchEvent {
	ev := domain.MatchEvent{
		ID:        uuid.New(),
		MatchID:   matchID,
		Kind:      domain.EventKindGoal,
		Timestamp: ts,
		Side:      scorer.Side,
		PrimaryID: scorer.ID,
	}
	if assistant.ID != uuid.Nil {
		ev.SecondaryID = assistant.ID
	}
	return ev
}

func TestRecomputeCountersAndScore(t *testing.T) {
	matchID := uuid.New()
	roster := testRoster()
	base := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

	events := []domain.MatchEvent{
		goalEvent(matchID, roster[0], roster[1], base),
		goalEvent(matchID, roster[2], domain.Player{}, base.Add(5*time.Minute)),
		{ID: uuid.New(), MatchID: matchID, Kind: domain.EventKindSave, Timestamp: base.Add(8 * time.Minute), Side: roster[3].Side, PrimaryID: roster[3].ID},
		{ID: uuid.New(), MatchID: matchID, Kind: domain.EventKindFoul, Timestamp: base.Add(12 * time.Minute), Side: roster[1].Side, PrimaryID: roster[1].ID},
		goalEvent(matchID, roster[0], domain.Player{}, base.Add(20*time.Minute)),
	}

	res := Recompute(events, roster)

	assert.Equal(t, 2, res.HomeScore)
	assert.Equal(t, 1, res.AwayScore)

	require.Len(t, res.Stats, 4)
	assert.Equal(t, 2, res.Stats[0].Goals)
	assert.Equal(t, 1, res.Stats[1].Assists)
	assert.Equal(t, 1, res.Stats[1].Fouls)
	assert.Equal(t, 1, res.Stats[2].Goals)
	assert.Equal(t, 1, res.Stats[3].Saves)
}

func TestRecomputeIsDeterministic(t *testing.T) {
	matchID := uuid.New()
	roster := testRoster()
	base := time.Now()

	events := []domain.MatchEvent{
		goalEvent(matchID, roster[0], roster[1], base),
		{ID: uuid.New(), MatchID: matchID, Kind: domain.EventKindSave, Timestamp: base.Add(time.Minute), Side: roster[3].Side, PrimaryID: roster[3].ID},
	}

	first := Recompute(events, roster)
	second := Recompute(events, roster)
	assert.Equal(t, first, second)
}

func TestRecomputeScoreUsesEventSide(t *testing.T) {
	matchID := uuid.New()
	roster := testRoster()

	// A goal credited to a home player but carrying the away side must
	// count for the away side, so own-goal style entries survive replay.
	ownGoal := domain.MatchEvent{
		ID:        uuid.New(),
		MatchID:   matchID,
		Kind:      domain.EventKindGoal,
		Timestamp: time.Now(),
		Side:      domain.TeamSideAway,
		PrimaryID: roster[0].ID,
	}

	res := Recompute([]domain.MatchEvent{ownGoal}, roster)
	assert.Equal(t, 0, res.HomeScore)
	assert.Equal(t, 1, res.AwayScore)
	assert.Equal(t, 1, res.Stats[0].Goals)
}

func TestRecomputeIgnoresUnknownActors(t *testing.T) {
	matchID := uuid.New()
	roster := testRoster()

	stranger := domain.MatchEvent{
		ID:        uuid.New(),
		MatchID:   matchID,
		Kind:      domain.EventKindGoal,
		Timestamp: time.Now(),
		Side:      domain.TeamSideHome,
		PrimaryID: uuid.New(),
	}

	res := Recompute([]domain.MatchEvent{stranger}, roster)
	// The score still reflects the event; only the counters need a roster
	// entry to land on.
	assert.Equal(t, 1, res.HomeScore)
	for _, row := range res.Stats {
		assert.Zero(t, row.Goals)
	}
}

func TestCardsCarryNoCounter(t *testing.T) {
	matchID := uuid.New()
	roster := testRoster()

	events := []domain.MatchEvent{
		{ID: uuid.New(), MatchID: matchID, Kind: domain.EventKindYellowCard, Timestamp: time.Now(), Side: roster[0].Side, PrimaryID: roster[0].ID},
		{ID: uuid.New(), MatchID: matchID, Kind: domain.EventKindRedCard, Timestamp: time.Now(), Side: roster[0].Side, PrimaryID: roster[0].ID},
	}

	res := Recompute(events, roster)
	row := res.Stats[0]
	assert.Zero(t, row.Goals)
	assert.Zero(t, row.Assists)
	assert.Zero(t, row.Saves)
	assert.Zero(t, row.Fouls)
	assert.InDelta(t, perfBase, row.Performance, 1e-9)
}

func TestPerformanceScoreBaseline(t *testing.T) {
	assert.InDelta(t, perfBase, performanceScore(0, 0, 0), 1e-9)
}

func TestPerformanceScoreSingleGoal(t *testing.T) {
	want := perfBase + goalWeight*(1-math.Exp(-goalRate))
	assert.InDelta(t, want, performanceScore(1, 0, 0), 1e-9)
}

func TestPerformanceScoreDiminishingReturns(t *testing.T) {
	firstGain := performanceScore(1, 0, 0) - performanceScore(0, 0, 0)
	secondGain := performanceScore(2, 0, 0) - performanceScore(1, 0, 0)
	assert.Less(t, secondGain, firstGain)
	assert.Greater(t, secondGain, 0.0)
}

func TestPerformanceScoreCapped(t *testing.T) {
	assert.LessOrEqual(t, performanceScore(100, 100, 100), perfCap)
}

func TestAwardsFirstMaximumWins(t *testing.T) {
	matchID := uuid.New()
	roster := testRoster()
	base := time.Now()

	// Both home players score once; the first roster entry takes the award
	events := []domain.MatchEvent{
		goalEvent(matchID, roster[0], domain.Player{}, base),
		goalEvent(matchID, roster[1], domain.Player{}, base.Add(time.Minute)),
	}

	res := Recompute(events, roster)
	assert.Equal(t, roster[0].ID, res.Awards.TopScorer)
	assert.Equal(t, roster[0].ID, res.Awards.MVP)
}

func TestAwardsUnsetWithoutActivity(t *testing.T) {
	res := Recompute(nil, testRoster())
	assert.Equal(t, uuid.Nil, res.Awards.MVP)
	assert.Equal(t, uuid.Nil, res.Awards.TopScorer)
	assert.Equal(t, uuid.Nil, res.Awards.TopGoalkeeper)
	assert.Equal(t, uuid.Nil, res.Awards.TopPlaymaker)
}

func TestAwardsPerCategory(t *testing.T) {
	matchID := uuid.New()
	roster := testRoster()
	base := time.Now()

	events := []domain.MatchEvent{
		goalEvent(matchID, roster[0], roster[1], base),
		{ID: uuid.New(), MatchID: matchID, Kind: domain.EventKindSave, Timestamp: base.Add(time.Minute), Side: roster[3].Side, PrimaryID: roster[3].ID},
		{ID: uuid.New(), MatchID: matchID, Kind: domain.EventKindSave, Timestamp: base.Add(2 * time.Minute), Side: roster[3].Side, PrimaryID: roster[3].ID},
	}

	res := Recompute(events, roster)
	assert.Equal(t, roster[0].ID, res.Awards.TopScorer)
	assert.Equal(t, roster[1].ID, res.Awards.TopPlaymaker)
	assert.Equal(t, roster[3].ID, res.Awards.TopGoalkeeper)
	// 3 MVP points for the goal beat 2 for the saves
	assert.Equal(t, roster[0].ID, res.Awards.MVP)
}
