package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// EventKind represents the kind of a match event
type EventKind string

const (
	EventKindGoal       EventKind = "goal"
	EventKindAssist     EventKind = "assist"
	EventKindFoul       EventKind = "foul"
	EventKindSave       EventKind = "save"
	EventKindYellowCard EventKind = "yellowCard"
	EventKindRedCard    EventKind = "redCard"
)

// ParseEventKind maps a wire-format kind string to an EventKind
func ParseEventKind(raw string) (EventKind, bool) {
	switch EventKind(raw) {
	case EventKindGoal, EventKindAssist, EventKindFoul, EventKindSave,
		EventKindYellowCard, EventKindRedCard:
		return EventKind(raw), true
	}
	return "", false
}

// MatchEvent is an immutable entry in a match's event log. PrimaryID is the
// scorer for goals, fouls and cards and the goalkeeper for saves.
// SecondaryID is the assistant and is only set on goal events; uuid.Nil
// means no assistant.
type MatchEvent struct {
	ID          uuid.UUID `json:"id"`
	MatchID     uuid.UUID `json:"match_id"`
	Kind        EventKind `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	Side        TeamSide  `json:"side"`
	PrimaryID   uuid.UUID `json:"primary_id"`
	SecondaryID uuid.UUID `json:"secondary_id,omitempty"`
}

// EventLog is the append-only, content-addressed event collection of a
// match. Events are deduplicated by ID; validation is the reconciliation
// engine's responsibility, not the log's.
type EventLog struct {
	events []MatchEvent
	index  map[uuid.UUID]int
}

// NewEventLog creates an empty event log
func NewEventLog() *EventLog {
	return &EventLog{index: make(map[uuid.UUID]int)}
}

// Append adds an event to the log. An event whose ID is already present is
// ignored, keeping the log free of duplicate identifiers after merges.
func (l *EventLog) Append(ev MatchEvent) bool {
	if _, ok := l.index[ev.ID]; ok {
		return false
	}
	l.index[ev.ID] = len(l.events)
	l.events = append(l.events, ev)
	return true
}

// RemoveAll physically empties the log
func (l *EventLog) RemoveAll() {
	l.events = nil
	l.index = make(map[uuid.UUID]int)
}

// Len returns the number of events in the log
func (l *EventLog) Len() int {
	return len(l.events)
}

// EventsSorted returns the events ordered ascending by timestamp. Timestamp
// ties keep insertion order so the ordering relation stays total.
func (l *EventLog) EventsSorted() []MatchEvent {
	out := make([]MatchEvent, len(l.events))
	copy(out, l.events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
