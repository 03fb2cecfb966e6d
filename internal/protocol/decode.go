package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

// Decode turns a wire field map into a typed command. Field values are
// defensively coerced: numbers may arrive as float64 (JSON), int or int64,
// and timestamps as epoch seconds. Errors wrap domain sentinels so callers
// can apply the drop-and-log policy without string matching.
func Decode(msg map[string]any) (Command, error) {
	kind, ok := stringField(msg, "command")
	if !ok {
		return nil, fmt.Errorf("%w: command", domain.ErrMissingField)
	}

	switch kind {
	case KindStartMatch:
		return decodeStartMatch(msg)
	case KindNewEvent, KindNewEventBackup:
		cmd, err := decodeNewEvent(msg)
		if err != nil {
			return nil, err
		}
		cmd.Backup = kind == KindNewEventBackup
		return cmd, nil
	case KindMatchEndedFromPhone, KindMatchEndedFromWatch:
		cmd, err := decodeMatchEnded(msg)
		if err != nil {
			return nil, err
		}
		cmd.FromWatch = kind == KindMatchEndedFromWatch
		return cmd, nil
	case KindScoreUpdate:
		return decodeScoreUpdate(msg)
	case KindNewPlayer:
		return decodeNewPlayer(msg)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, kind)
	}
}

func decodeStartMatch(msg map[string]any) (StartMatch, error) {
	var cmd StartMatch
	matchID, ok := uuidField(msg, "matchId")
	if !ok {
		return cmd, fmt.Errorf("%w: matchId", domain.ErrMissingField)
	}
	home, ok := stringField(msg, "homeTeamName")
	if !ok {
		return cmd, fmt.Errorf("%w: homeTeamName", domain.ErrMissingField)
	}
	away, ok := stringField(msg, "awayTeamName")
	if !ok {
		return cmd, fmt.Errorf("%w: awayTeamName", domain.ErrMissingField)
	}

	cmd.MatchID = matchID
	cmd.HomeTeamName = home
	cmd.AwayTeamName = away
	cmd.Location, _ = stringField(msg, "location")
	cmd.Weather, _ = stringField(msg, "weather")
	cmd.Referee, _ = stringField(msg, "referee")
	cmd.DurationMinutes, _ = intField(msg, "duration")

	raw, ok := msg["players"].([]any)
	if !ok {
		return cmd, fmt.Errorf("%w: players", domain.ErrMissingField)
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := uuidField(entry, "id")
		if !ok {
			continue
		}
		name, ok := stringField(entry, "name")
		if !ok {
			continue
		}
		isHome, _ := boolField(entry, "isHomeTeam")
		cmd.Players = append(cmd.Players, RosterPlayer{ID: id, Name: name, IsHomeTeam: isHome})
	}
	return cmd, nil
}

func decodeNewEvent(msg map[string]any) (NewEvent, error) {
	var cmd NewEvent
	matchID, ok := uuidField(msg, "matchId")
	if !ok {
		return cmd, fmt.Errorf("%w: matchId", domain.ErrMissingField)
	}
	rawKind, ok := stringField(msg, "eventType")
	if !ok {
		return cmd, fmt.Errorf("%w: eventType", domain.ErrMissingField)
	}
	eventKind, ok := domain.ParseEventKind(rawKind)
	if !ok {
		return cmd, fmt.Errorf("%w: eventType %q", domain.ErrInvalidCommand, rawKind)
	}

	cmd.MatchID = matchID
	cmd.EventKind = eventKind
	cmd.Timestamp = timestampField(msg, "timestamp")
	cmd.PrimaryID = resolvePrimaryActor(msg, eventKind)
	cmd.SecondaryID, _ = uuidField(msg, "assistantId")
	return cmd, nil
}

// resolvePrimaryActor applies the tolerant field resolution rule: the
// kind-specific key wins when present, then the generic "playerId" key.
// Saves address the goalkeeper under "goalkeeperId"; every other kind uses
// "playerId" directly. Returns uuid.Nil when neither key resolves, which
// the engine rejects downstream.
func resolvePrimaryActor(msg map[string]any, kind domain.EventKind) uuid.UUID {
	if kind == domain.EventKindSave {
		if id, ok := uuidField(msg, "goalkeeperId"); ok {
			return id
		}
	}
	if id, ok := uuidField(msg, "playerId"); ok {
		return id
	}
	return uuid.Nil
}

func decodeMatchEnded(msg map[string]any) (MatchEnded, error) {
	var cmd MatchEnded
	matchID, ok := uuidField(msg, "matchId")
	if !ok {
		return cmd, fmt.Errorf("%w: matchId", domain.ErrMissingField)
	}
	homeScore, ok := intField(msg, "homeScore")
	if !ok {
		return cmd, fmt.Errorf("%w: homeScore", domain.ErrMissingField)
	}
	awayScore, ok := intField(msg, "awayScore")
	if !ok {
		return cmd, fmt.Errorf("%w: awayScore", domain.ErrMissingField)
	}
	raw, ok := msg["events"].([]any)
	if !ok {
		return cmd, fmt.Errorf("%w: events", domain.ErrMissingField)
	}

	cmd.MatchID = matchID
	cmd.HomeScore = homeScore
	cmd.AwayScore = awayScore
	cmd.Events = make([]WireEvent, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rawKind, ok := stringField(entry, "eventType")
		if !ok {
			continue
		}
		eventKind, ok := domain.ParseEventKind(rawKind)
		if !ok {
			continue
		}
		primary := resolvePrimaryActor(entry, eventKind)
		if primary == uuid.Nil {
			continue
		}
		isHome, _ := boolField(entry, "isHomeTeam")
		secondary, _ := uuidField(entry, "assistantId")
		cmd.Events = append(cmd.Events, WireEvent{
			EventKind:   eventKind,
			Timestamp:   timestampField(entry, "timestamp"),
			IsHomeTeam:  isHome,
			PrimaryID:   primary,
			SecondaryID: secondary,
		})
	}
	return cmd, nil
}

func decodeScoreUpdate(msg map[string]any) (ScoreUpdate, error) {
	var cmd ScoreUpdate
	matchID, ok := uuidField(msg, "matchId")
	if !ok {
		return cmd, fmt.Errorf("%w: matchId", domain.ErrMissingField)
	}
	homeScore, ok := intField(msg, "homeScore")
	if !ok {
		return cmd, fmt.Errorf("%w: homeScore", domain.ErrMissingField)
	}
	awayScore, ok := intField(msg, "awayScore")
	if !ok {
		return cmd, fmt.Errorf("%w: awayScore", domain.ErrMissingField)
	}
	cmd.MatchID = matchID
	cmd.HomeScore = homeScore
	cmd.AwayScore = awayScore
	return cmd, nil
}

func decodeNewPlayer(msg map[string]any) (NewPlayer, error) {
	var cmd NewPlayer
	matchID, ok := uuidField(msg, "matchId")
	if !ok {
		return cmd, fmt.Errorf("%w: matchId", domain.ErrMissingField)
	}
	playerID, ok := uuidField(msg, "playerId")
	if !ok {
		return cmd, fmt.Errorf("%w: playerId", domain.ErrMissingField)
	}
	name, ok := stringField(msg, "name")
	if !ok {
		return cmd, fmt.Errorf("%w: name", domain.ErrMissingField)
	}
	isHome, _ := boolField(msg, "isHomeTeam")
	cmd.MatchID = matchID
	cmd.PlayerID = playerID
	cmd.Name = name
	cmd.IsHomeTeam = isHome
	return cmd, nil
}

// Field coercion helpers. Wire maps come from JSON decoding or directly
// from in-process callers, so numeric fields may be float64, int or int64.

func stringField(msg map[string]any, key string) (string, bool) {
	v, ok := msg[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func boolField(msg map[string]any, key string) (bool, bool) {
	v, ok := msg[key].(bool)
	return v, ok
}

func intField(msg map[string]any, key string) (int, bool) {
	switch v := msg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func floatField(msg map[string]any, key string) (float64, bool) {
	switch v := msg[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// timestampField reads an epoch-seconds timestamp. A zero time is returned
// when the field is absent; the engine substitutes the receive time.
func timestampField(msg map[string]any, key string) time.Time {
	secs, ok := floatField(msg, key)
	if !ok {
		return time.Time{}
	}
	return time.Unix(0, int64(secs*float64(time.Second)))
}

func uuidField(msg map[string]any, key string) (uuid.UUID, bool) {
	raw, ok := stringField(msg, key)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
