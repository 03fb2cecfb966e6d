package domain

import "github.com/google/uuid"

// Player is a match roster entry. Player identity is shared across matches
// and referenced, never owned, by match aggregates.
type Player struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Side TeamSide  `json:"side"`
}

// PlayerMatchStats is the per-player, per-match aggregate. Every counter is
// re-derivable from the match event log; the reconciliation engine replaces
// these rows wholesale instead of trusting prior values.
type PlayerMatchStats struct {
	PlayerID      uuid.UUID `json:"player_id"`
	MatchID       uuid.UUID `json:"match_id"`
	PlayerName    string    `json:"player_name"`
	Side          TeamSide  `json:"side"`
	Goals         int       `json:"goals"`
	Assists       int       `json:"assists"`
	Saves         int       `json:"saves"`
	Fouls         int       `json:"fouls"`
	MinutesPlayed int       `json:"minutes_played"`
	Performance   float64   `json:"performance"`
}

// NewPlayerMatchStats returns a zeroed stats row for a roster entry
func NewPlayerMatchStats(matchID uuid.UUID, p Player) PlayerMatchStats {
	return PlayerMatchStats{
		PlayerID:   p.ID,
		MatchID:    matchID,
		PlayerName: p.Name,
		Side:       p.Side,
	}
}
