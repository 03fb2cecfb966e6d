package protocol

import (
	"github.com/google/uuid"
)

// Encode renders a typed command as a wire field map. Timestamps are
// encoded as epoch seconds and absent optional actors are encoded as empty
// strings, matching what the legacy devices emit.
func Encode(cmd Command) map[string]any {
	msg := map[string]any{
		"command":         cmd.CommandKind(),
		"protocolVersion": Version,
	}

	switch c := cmd.(type) {
	case StartMatch:
		msg["matchId"] = c.MatchID.String()
		msg["homeTeamName"] = c.HomeTeamName
		msg["awayTeamName"] = c.AwayTeamName
		if c.Location != "" {
			msg["location"] = c.Location
		}
		if c.Weather != "" {
			msg["weather"] = c.Weather
		}
		if c.Referee != "" {
			msg["referee"] = c.Referee
		}
		if c.DurationMinutes > 0 {
			msg["duration"] = c.DurationMinutes
		}
		players := make([]any, 0, len(c.Players))
		for _, p := range c.Players {
			players = append(players, map[string]any{
				"id":         p.ID.String(),
				"name":       p.Name,
				"isHomeTeam": p.IsHomeTeam,
			})
		}
		msg["players"] = players

	case NewEvent:
		msg["matchId"] = c.MatchID.String()
		msg["eventType"] = string(c.EventKind)
		if !c.Timestamp.IsZero() {
			msg["timestamp"] = float64(c.Timestamp.UnixNano()) / 1e9
		}
		msg["playerId"] = uuidOrEmpty(c.PrimaryID)
		msg["assistantId"] = uuidOrEmpty(c.SecondaryID)
		if c.Backup {
			msg["command"] = KindNewEventBackup
		}

	case MatchEnded:
		msg["matchId"] = c.MatchID.String()
		msg["homeScore"] = c.HomeScore
		msg["awayScore"] = c.AwayScore
		events := make([]any, 0, len(c.Events))
		for _, ev := range c.Events {
			events = append(events, map[string]any{
				"eventType":   string(ev.EventKind),
				"timestamp":   float64(ev.Timestamp.UnixNano()) / 1e9,
				"isHomeTeam":  ev.IsHomeTeam,
				"playerId":    uuidOrEmpty(ev.PrimaryID),
				"assistantId": uuidOrEmpty(ev.SecondaryID),
			})
		}
		msg["events"] = events

	case ScoreUpdate:
		msg["matchId"] = c.MatchID.String()
		msg["homeScore"] = c.HomeScore
		msg["awayScore"] = c.AwayScore

	case NewPlayer:
		msg["matchId"] = c.MatchID.String()
		msg["playerId"] = c.PlayerID.String()
		msg["name"] = c.Name
		msg["isHomeTeam"] = c.IsHomeTeam
	}

	return msg
}

func uuidOrEmpty(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
