package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogAppendDeduplicates(t *testing.T) {
	log := NewEventLog()
	ev := MatchEvent{ID: uuid.New(), Kind: EventKindGoal, Timestamp: time.Now()}

	assert.True(t, log.Append(ev))
	assert.False(t, log.Append(ev))
	assert.Equal(t, 1, log.Len())
}

func TestEventLogSortedByTimestamp(t *testing.T) {
	log := NewEventLog()
	base := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

	late := MatchEvent{ID: uuid.New(), Kind: EventKindFoul, Timestamp: base.Add(10 * time.Minute)}
	early := MatchEvent{ID: uuid.New(), Kind: EventKindGoal, Timestamp: base}
	log.Append(late)
	log.Append(early)

	sorted := log.EventsSorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, early.ID, sorted[0].ID)
	assert.Equal(t, late.ID, sorted[1].ID)
}

func TestEventLogSortKeepsInsertionOrderOnTies(t *testing.T) {
	log := NewEventLog()
	ts := time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)

	first := MatchEvent{ID: uuid.New(), Kind: EventKindGoal, Timestamp: ts}
	second := MatchEvent{ID: uuid.New(), Kind: EventKindSave, Timestamp: ts}
	log.Append(first)
	log.Append(second)

	sorted := log.EventsSorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, first.ID, sorted[0].ID)
	assert.Equal(t, second.ID, sorted[1].ID)
}

func TestEventLogRemoveAll(t *testing.T) {
	log := NewEventLog()
	ev := MatchEvent{ID: uuid.New(), Kind: EventKindGoal, Timestamp: time.Now()}
	log.Append(ev)

	log.RemoveAll()

	assert.Equal(t, 0, log.Len())
	// The same ID must be appendable again after a purge
	assert.True(t, log.Append(ev))
}

func TestMatchAddPlayerIdempotent(t *testing.T) {
	m := NewMatch(uuid.New(), "Red Bibs", "Blue Bibs", time.Now())
	p := Player{ID: uuid.New(), Name: "Mateo", Side: TeamSideHome}

	assert.True(t, m.AddPlayer(p))
	assert.False(t, m.AddPlayer(p))
	assert.Len(t, m.Roster, 1)
	assert.Len(t, m.Stats, 1)
	assert.Equal(t, p.ID, m.Stats[0].PlayerID)
}
