package stats

import (
	"sort"

	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

// Metric selects which counter a career leaderboard ranks by
type Metric string

const (
	MetricGoals   Metric = "goals"
	MetricAssists Metric = "assists"
	MetricSaves   Metric = "saves"
)

// ParseMetric validates a leaderboard metric name
func ParseMetric(raw string) (Metric, bool) {
	switch Metric(raw) {
	case MetricGoals, MetricAssists, MetricSaves:
		return Metric(raw), true
	}
	return "", false
}

// LeaderboardEntry is one row of a career ranking
type LeaderboardEntry struct {
	Rank       int       `json:"rank"`
	PlayerID   uuid.UUID `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Value      int       `json:"value"`
	Matches    int       `json:"matches"`
}

// CareerLeaders folds per-match stats rows into a cross-match ranking for
// one metric, descending, with ties broken by player name for a stable
// presentation order.
func CareerLeaders(rows []domain.PlayerMatchStats, metric Metric) []LeaderboardEntry {
	totals := make(map[uuid.UUID]*LeaderboardEntry)
	for _, row := range rows {
		entry, ok := totals[row.PlayerID]
		if !ok {
			entry = &LeaderboardEntry{PlayerID: row.PlayerID, PlayerName: row.PlayerName}
			totals[row.PlayerID] = entry
		}
		entry.Matches++
		switch metric {
		case MetricGoals:
			entry.Value += row.Goals
		case MetricAssists:
			entry.Value += row.Assists
		case MetricSaves:
			entry.Value += row.Saves
		}
	}

	out := make([]LeaderboardEntry, 0, len(totals))
	for _, entry := range totals {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].PlayerName < out[j].PlayerName
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
