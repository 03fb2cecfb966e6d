package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus represents the lifecycle state of a match
type MatchStatus string

const (
	MatchStatusNotStarted MatchStatus = "not_started"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusFinished   MatchStatus = "finished"
)

// TeamSide identifies which team an event or player belongs to
type TeamSide string

const (
	TeamSideHome TeamSide = "home"
	TeamSideAway TeamSide = "away"
)

// SideFromHomeFlag converts the wire-format home-team flag to a TeamSide
func SideFromHomeFlag(isHomeTeam bool) TeamSide {
	if isHomeTeam {
		return TeamSideHome
	}
	return TeamSideAway
}

// IsHome reports whether the side is the home team
func (s TeamSide) IsHome() bool {
	return s == TeamSideHome
}

// MatchAwards holds the computed end-of-match awards. A nil player ID means
// the award was not earned (no qualifying activity).
type MatchAwards struct {
	MVP           uuid.UUID `json:"mvp,omitempty"`
	TopScorer     uuid.UUID `json:"top_scorer,omitempty"`
	TopGoalkeeper uuid.UUID `json:"top_goalkeeper,omitempty"`
	TopPlaymaker  uuid.UUID `json:"top_playmaker,omitempty"`
}

// Match is the aggregate root for one replica of a recorded match.
// Score, stats and awards are derived from the event log and must only be
// written back by the reconciliation engine.
type Match struct {
	ID              uuid.UUID   `json:"id"`
	Status          MatchStatus `json:"status"`
	HomeTeamName    string      `json:"home_team_name"`
	AwayTeamName    string      `json:"away_team_name"`
	StartedAt       time.Time   `json:"started_at"`
	DurationMinutes int         `json:"duration_minutes,omitempty"`
	Location        string      `json:"location,omitempty"`
	Weather         string      `json:"weather,omitempty"`
	Referee         string      `json:"referee,omitempty"`
	HomeScore       int         `json:"home_score"`
	AwayScore       int         `json:"away_score"`
	Awards          *MatchAwards `json:"awards,omitempty"`

	Log    *EventLog          `json:"-"`
	Roster []Player           `json:"roster"`
	Stats  []PlayerMatchStats `json:"stats"`
}

// NewMatch creates an empty match aggregate in the not-started state
func NewMatch(id uuid.UUID, homeTeamName, awayTeamName string, startedAt time.Time) *Match {
	return &Match{
		ID:           id,
		Status:       MatchStatusNotStarted,
		HomeTeamName: homeTeamName,
		AwayTeamName: awayTeamName,
		StartedAt:    startedAt,
		Log:          NewEventLog(),
	}
}

// RosterEntry returns the roster entry for a player ID
func (m *Match) RosterEntry(playerID uuid.UUID) (Player, bool) {
	for _, p := range m.Roster {
		if p.ID == playerID {
			return p, true
		}
	}
	return Player{}, false
}

// HasPlayer reports whether the player is on the match roster
func (m *Match) HasPlayer(playerID uuid.UUID) bool {
	_, ok := m.RosterEntry(playerID)
	return ok
}

// AddPlayer appends a roster entry with a zeroed stats row. It is a no-op
// when the player ID is already present.
func (m *Match) AddPlayer(p Player) bool {
	if m.HasPlayer(p.ID) {
		return false
	}
	m.Roster = append(m.Roster, p)
	m.Stats = append(m.Stats, NewPlayerMatchStats(m.ID, p))
	return true
}

// StatsFor returns a pointer to the stats row of a player, or nil
func (m *Match) StatsFor(playerID uuid.UUID) *PlayerMatchStats {
	for i := range m.Stats {
		if m.Stats[i].PlayerID == playerID {
			return &m.Stats[i]
		}
	}
	return nil
}
