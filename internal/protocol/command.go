// Package protocol defines the inter-device command set and its wire
// codec. On the wire a command is a flat string-keyed field map with a
// "command" discriminator; this package decodes that map once, at the
// transport boundary, into a closed tagged union so the reconciliation
// engine only ever sees statically typed input.
package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

// Wire command kinds. The matchEnded direction suffix identifies the
// sending device so a replica never re-applies its own outbound full sync.
const (
	KindStartMatch          = "startMatch"
	KindNewEvent            = "newEvent"
	KindNewEventBackup      = "newEventBackup"
	KindMatchEndedFromPhone = "matchEndedFromPhone"
	KindMatchEndedFromWatch = "matchEndedFromWatch"
	KindScoreUpdate         = "updateScore"
	KindNewPlayer           = "newPlayer"
)

// Version is stamped into every encoded payload under "protocolVersion".
// Decoding tolerates its absence for compatibility with the legacy
// protocol, which carried no version field at all.
const Version = 1

// Command is the closed set of inter-device messages
type Command interface {
	CommandKind() string
}

// RosterPlayer is a roster entry carried by StartMatch
type RosterPlayer struct {
	ID         uuid.UUID
	Name       string
	IsHomeTeam bool
}

// StartMatch tells the peer to create a local shadow of a match
type StartMatch struct {
	MatchID         uuid.UUID
	HomeTeamName    string
	AwayTeamName    string
	Location        string
	Weather         string
	Referee         string
	DurationMinutes int
	Players         []RosterPlayer
}

func (StartMatch) CommandKind() string { return KindStartMatch }

// NewEvent is an incremental append of one event. PrimaryID is resolved
// with the kind-specific/generic fallback rule; SecondaryID is the
// assistant and may be uuid.Nil. Backup marks a copy that arrived over the
// durable context channel.
type NewEvent struct {
	MatchID     uuid.UUID
	EventKind   domain.EventKind
	Timestamp   time.Time
	PrimaryID   uuid.UUID
	SecondaryID uuid.UUID
	Backup      bool
}

func (NewEvent) CommandKind() string { return KindNewEvent }

// WireEvent is one entry of a full-sync event array
type WireEvent struct {
	EventKind   domain.EventKind
	Timestamp   time.Time
	IsHomeTeam  bool
	PrimaryID   uuid.UUID
	SecondaryID uuid.UUID
}

// MatchEnded is the authoritative end-of-match full sync: final score plus
// the sender's complete ordered event log.
type MatchEnded struct {
	MatchID   uuid.UUID
	HomeScore int
	AwayScore int
	Events    []WireEvent
	FromWatch bool
}

func (c MatchEnded) CommandKind() string {
	if c.FromWatch {
		return KindMatchEndedFromWatch
	}
	return KindMatchEndedFromPhone
}

// ScoreUpdate patches the live scoreboard without touching the event log
type ScoreUpdate struct {
	MatchID   uuid.UUID
	HomeScore int
	AwayScore int
}

func (ScoreUpdate) CommandKind() string { return KindScoreUpdate }

// NewPlayer adds a roster entry and a zeroed stats row to the peer replica
type NewPlayer struct {
	MatchID    uuid.UUID
	PlayerID   uuid.UUID
	Name       string
	IsHomeTeam bool
}

func (NewPlayer) CommandKind() string { return KindNewPlayer }
