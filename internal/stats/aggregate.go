// Package stats implements the aggregation engine: pure, deterministic
// functions that derive score, per-player counters, awards and performance
// ratings from a match's event log. Aggregates are never hand-incremented
// anywhere in the codebase; every mutation of the log is followed by a full
// replay through Recompute.
package stats

import (
	"math"

	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

// Performance rating tunables. The saturating shape and the 10.0 ceiling
// are contractual; the coefficients are a product decision.
const (
	perfBase = 5.5
	perfCap  = 10.0

	goalWeight   = 2.5
	goalRate     = 0.7
	assistWeight = 1.5
	assistRate   = 0.6
	saveWeight   = 1.2
	saveRate     = 0.5
)

// MVP weighting: 3 points per goal, 2 per assist, 1 per save.
const (
	mvpGoalPoints   = 3
	mvpAssistPoints = 2
	mvpSavePoints   = 1
)

// Result is the complete replacement set of aggregates derived from one
// replay of the event log.
type Result struct {
	HomeScore int
	AwayScore int
	Stats     []domain.PlayerMatchStats
	Awards    domain.MatchAwards
}

// Recompute replays the ordered event list against the match roster and
// returns fresh aggregates. It reads nothing but its arguments and mutates
// nothing, so repeated invocation over the same log is idempotent.
//
// Counter rules: each event increments exactly one counter per role. The
// primary actor's counter follows the event kind (goals, assists, saves,
// fouls; cards carry no counter). The secondary actor's assist counter is
// incremented for goal events only. The score uses the event's own team
// side rather than the scorer's roster side, so own-goal style exceptions
// survive replay.
func Recompute(events []domain.MatchEvent, roster []domain.Player) Result {
	var res Result
	if len(roster) == 0 && len(events) == 0 {
		return res
	}

	matchID := uuid.Nil
	if len(events) > 0 {
		matchID = events[0].MatchID
	}

	rows := make([]domain.PlayerMatchStats, len(roster))
	byID := make(map[uuid.UUID]*domain.PlayerMatchStats, len(roster))
	for i, p := range roster {
		rows[i] = domain.NewPlayerMatchStats(matchID, p)
		byID[p.ID] = &rows[i]
	}

	for _, ev := range events {
		primary := byID[ev.PrimaryID]

		switch ev.Kind {
		case domain.EventKindGoal:
			if ev.Side.IsHome() {
				res.HomeScore++
			} else {
				res.AwayScore++
			}
			if primary != nil {
				primary.Goals++
			}
			if ev.SecondaryID != uuid.Nil {
				if assistant := byID[ev.SecondaryID]; assistant != nil {
					assistant.Assists++
				}
			}
		case domain.EventKindAssist:
			if primary != nil {
				primary.Assists++
			}
		case domain.EventKindSave:
			if primary != nil {
				primary.Saves++
			}
		case domain.EventKindFoul:
			if primary != nil {
				primary.Fouls++
			}
		case domain.EventKindYellowCard, domain.EventKindRedCard:
			// Recorded in the log and timeline only.
		}
	}

	for i := range rows {
		rows[i].Performance = performanceScore(rows[i].Goals, rows[i].Assists, rows[i].Saves)
	}

	res.Stats = rows
	res.Awards = computeAwards(rows)
	return res
}

// performanceScore maps raw counters to a bounded 0-10 rating. Each counter
// contributes a negative-exponential term so returns diminish, and the sum
// saturates at perfCap.
func performanceScore(goals, assists, saves int) float64 {
	score := perfBase +
		goalWeight*(1-math.Exp(-goalRate*float64(goals))) +
		assistWeight*(1-math.Exp(-assistRate*float64(assists))) +
		saveWeight*(1-math.Exp(-saveRate*float64(saves)))
	return math.Min(score, perfCap)
}

// computeAwards picks the match awards. Ties break to the first maximum in
// roster order, which is stable across replays. An award with no qualifying
// activity (maximum of zero) is left unset.
func computeAwards(rows []domain.PlayerMatchStats) domain.MatchAwards {
	var awards domain.MatchAwards

	bestMVP, bestGoals, bestSaves, bestAssists := 0, 0, 0, 0
	for _, row := range rows {
		mvpPoints := mvpGoalPoints*row.Goals + mvpAssistPoints*row.Assists + mvpSavePoints*row.Saves
		if mvpPoints > bestMVP {
			bestMVP = mvpPoints
			awards.MVP = row.PlayerID
		}
		if row.Goals > bestGoals {
			bestGoals = row.Goals
			awards.TopScorer = row.PlayerID
		}
		if row.Saves > bestSaves {
			bestSaves = row.Saves
			awards.TopGoalkeeper = row.PlayerID
		}
		if row.Assists > bestAssists {
			bestAssists = row.Assists
			awards.TopPlaymaker = row.PlayerID
		}
	}
	return awards
}
