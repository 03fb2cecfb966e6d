// Package reconcile implements the reconciliation engine: the single
// writer of the match event log. It applies decoded peer commands to the
// local replica, choosing between incremental append and full-log replace,
// and re-derives every aggregate from the log afterwards.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
	"github.com/xinchenjiangau/PickUpSoccer/internal/protocol"
	"github.com/xinchenjiangau/PickUpSoccer/internal/stats"
)

// Replica lifecycle states
const (
	StateUnsynced    = "unsynced"
	StateLive        = "live"
	StateReconciling = "reconciling"
	StateFinished    = "finished"
)

// Lifecycle transitions
const (
	eventStart  = "start"  // unsynced -> live
	eventApply  = "apply"  // live -> reconciling (incremental append)
	eventResync = "resync" // live|finished -> reconciling (full replace)
	eventSettle = "settle" // reconciling -> live
	eventFinish = "finish" // reconciling -> finished
)

// replica tracks the per-match mutual-exclusion boundary and lifecycle
// state machine. The mutex serializes the whole apply-then-recompute
// sequence so an append from one message cannot interleave with a full
// replace from another.
type replica struct {
	mu        sync.Mutex
	lifecycle *fsm.FSM
}

// Engine applies commands to the local replica set. All mutation of match
// aggregates in the process goes through here.
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	replicas map[uuid.UUID]*replica
}

// NewEngine creates a reconciliation engine over a store
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		logger:   logger,
		now:      time.Now,
		replicas: make(map[uuid.UUID]*replica),
	}
}

// Apply routes one decoded command to its handler. The returned error is
// diagnostic only: callers at the protocol boundary log it and drop the
// command, never surfacing it to the user.
func (e *Engine) Apply(ctx context.Context, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.StartMatch:
		return e.applyStartMatch(ctx, c)
	case protocol.NewEvent:
		return e.applyNewEvent(ctx, c)
	case protocol.MatchEnded:
		return e.applyMatchEnded(ctx, c)
	case protocol.ScoreUpdate:
		return e.applyScoreUpdate(ctx, c)
	case protocol.NewPlayer:
		return e.applyNewPlayer(ctx, c)
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownCommand, cmd)
	}
}

// LifecycleState reports the current lifecycle state for a match replica,
// or StateUnsynced when the engine has not touched it yet.
func (e *Engine) LifecycleState(matchID uuid.UUID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	rep, ok := e.replicas[matchID]
	if !ok || rep.lifecycle == nil {
		return StateUnsynced
	}
	return rep.lifecycle.Current()
}

// DeleteMatch destroys a match and its owned events and stats
func (e *Engine) DeleteMatch(ctx context.Context, matchID uuid.UUID) error {
	rep := e.replica(matchID)
	rep.mu.Lock()
	defer rep.mu.Unlock()

	if err := e.store.DeleteMatch(ctx, matchID); err != nil {
		return fmt.Errorf("deleting match: %w", err)
	}
	e.mu.Lock()
	delete(e.replicas, matchID)
	e.mu.Unlock()
	return nil
}

func (e *Engine) replica(matchID uuid.UUID) *replica {
	e.mu.Lock()
	defer e.mu.Unlock()
	rep, ok := e.replicas[matchID]
	if !ok {
		rep = &replica{}
		e.replicas[matchID] = rep
	}
	return rep
}

// lifecycle lazily builds the state machine for a replica, seeding it from
// the persisted match status after a process restart.
func (e *Engine) lifecycle(rep *replica, status domain.MatchStatus) *fsm.FSM {
	if rep.lifecycle != nil {
		return rep.lifecycle
	}
	initial := StateUnsynced
	switch status {
	case domain.MatchStatusInProgress:
		initial = StateLive
	case domain.MatchStatusFinished:
		initial = StateFinished
	}
	rep.lifecycle = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: eventStart, Src: []string{StateUnsynced}, Dst: StateLive},
			{Name: eventApply, Src: []string{StateLive}, Dst: StateReconciling},
			{Name: eventResync, Src: []string{StateLive, StateFinished}, Dst: StateReconciling},
			{Name: eventSettle, Src: []string{StateReconciling}, Dst: StateLive},
			{Name: eventFinish, Src: []string{StateReconciling}, Dst: StateFinished},
		},
		fsm.Callbacks{},
	)
	return rep.lifecycle
}

// applyStartMatch creates a local shadow of a match started on the peer.
// A shadow that already exists is left untouched.
func (e *Engine) applyStartMatch(ctx context.Context, cmd protocol.StartMatch) error {
	rep := e.replica(cmd.MatchID)
	rep.mu.Lock()
	defer rep.mu.Unlock()

	if _, err := e.store.GetMatch(ctx, cmd.MatchID); err == nil {
		e.logger.Debug("start match ignored, shadow already exists", "match_id", cmd.MatchID)
		return nil
	}

	m := domain.NewMatch(cmd.MatchID, cmd.HomeTeamName, cmd.AwayTeamName, e.now())
	m.Status = domain.MatchStatusInProgress
	m.Location = cmd.Location
	m.Weather = cmd.Weather
	m.Referee = cmd.Referee
	m.DurationMinutes = cmd.DurationMinutes
	for _, p := range cmd.Players {
		m.AddPlayer(domain.Player{
			ID:   p.ID,
			Name: p.Name,
			Side: domain.SideFromHomeFlag(p.IsHomeTeam),
		})
	}

	if err := e.persist(ctx, "create match", func() error {
		return e.store.CreateMatch(ctx, m)
	}); err != nil {
		return err
	}

	lc := e.lifecycle(rep, domain.MatchStatusNotStarted)
	if lc.Current() == StateUnsynced {
		_ = lc.Event(ctx, eventStart)
	}
	e.logger.Info("match shadow created",
		"match_id", m.ID,
		"home_team", m.HomeTeamName,
		"away_team", m.AwayTeamName,
		"roster_size", len(m.Roster),
	)
	return nil
}

// applyNewEvent is the incremental append path: validate, construct the
// event from resolved fields, append, then recompute every aggregate from
// the full log. Counters are never hand-incremented; replay is the only
// source of aggregate values.
func (e *Engine) applyNewEvent(ctx context.Context, cmd protocol.NewEvent) error {
	rep := e.replica(cmd.MatchID)
	rep.mu.Lock()
	defer rep.mu.Unlock()

	m, err := e.store.GetMatch(ctx, cmd.MatchID)
	if err != nil {
		return fmt.Errorf("new event for unknown match %s: %w", cmd.MatchID, err)
	}

	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	ev, err := e.buildEvent(m, cmd.EventKind, ts, cmd.PrimaryID, cmd.SecondaryID)
	if err != nil {
		return fmt.Errorf("new event rejected: %w", err)
	}

	lc := e.lifecycle(rep, m.Status)
	if err := lc.Event(ctx, eventApply); err != nil {
		return fmt.Errorf("new event in state %s: %w", lc.Current(), domain.ErrMatchFinished)
	}
	defer func() { _ = lc.Event(ctx, eventSettle) }()

	m.Log.Append(ev)
	if err := e.persist(ctx, "insert event", func() error {
		return e.store.InsertEvent(ctx, ev)
	}); err != nil {
		return err
	}

	e.recompute(m)
	if err := e.persist(ctx, "save aggregates", func() error {
		return e.store.SaveAggregates(ctx, m)
	}); err != nil {
		return err
	}

	e.logger.Info("event appended",
		"match_id", m.ID,
		"event_id", ev.ID,
		"kind", ev.Kind,
		"side", ev.Side,
		"backup", cmd.Backup,
	)
	return nil
}

// applyMatchEnded is the authoritative full-log replace and the protocol's
// only guaranteed convergence point. The local log is physically emptied
// so repeated full syncs cannot accumulate duplicates, then the sender's
// ordered event array is replayed through the same construction path as
// incremental appends, skipping entries whose actors cannot be resolved.
func (e *Engine) applyMatchEnded(ctx context.Context, cmd protocol.MatchEnded) error {
	rep := e.replica(cmd.MatchID)
	rep.mu.Lock()
	defer rep.mu.Unlock()

	m, err := e.store.GetMatch(ctx, cmd.MatchID)
	if err != nil {
		return fmt.Errorf("full sync for unknown match %s: %w", cmd.MatchID, err)
	}

	lc := e.lifecycle(rep, m.Status)
	if err := lc.Event(ctx, eventResync); err != nil {
		return fmt.Errorf("full sync in state %s: %w", lc.Current(), err)
	}
	defer func() {
		if lc.Current() == StateReconciling {
			_ = lc.Event(ctx, eventFinish)
		}
	}()

	m.HomeScore = cmd.HomeScore
	m.AwayScore = cmd.AwayScore

	if err := e.persist(ctx, "delete events", func() error {
		return e.store.DeleteEvents(ctx, m.ID)
	}); err != nil {
		return err
	}
	m.Log.RemoveAll()

	skipped := 0
	for _, wire := range cmd.Events {
		ts := wire.Timestamp
		if ts.IsZero() {
			ts = e.now()
		}
		ev, err := e.buildEvent(m, wire.EventKind, ts, wire.PrimaryID, wire.SecondaryID)
		if err != nil {
			skipped++
			e.logger.Warn("full sync entry skipped", "match_id", m.ID, "error", err)
			continue
		}
		if !m.Log.Append(ev) {
			continue
		}
		if err := e.persist(ctx, "insert event", func() error {
			return e.store.InsertEvent(ctx, ev)
		}); err != nil {
			skipped++
			e.logger.Warn("full sync entry dropped after retry", "match_id", m.ID, "error", err)
		}
	}

	e.recompute(m)
	m.Status = domain.MatchStatusFinished
	if m.DurationMinutes > 0 {
		for i := range m.Stats {
			m.Stats[i].MinutesPlayed = m.DurationMinutes
		}
	}
	if err := e.persist(ctx, "save aggregates", func() error {
		return e.store.SaveAggregates(ctx, m)
	}); err != nil {
		return err
	}

	e.logger.Info("full sync applied",
		"match_id", m.ID,
		"events", m.Log.Len(),
		"skipped", skipped,
		"home_score", m.HomeScore,
		"away_score", m.AwayScore,
		"from_watch", cmd.FromWatch,
	)
	return nil
}

// applyScoreUpdate patches the scoreboard fields only. It is a live hint
// that the next full sync is explicitly allowed to override.
func (e *Engine) applyScoreUpdate(ctx context.Context, cmd protocol.ScoreUpdate) error {
	rep := e.replica(cmd.MatchID)
	rep.mu.Lock()
	defer rep.mu.Unlock()

	if err := e.persist(ctx, "update score", func() error {
		return e.store.UpdateScore(ctx, cmd.MatchID, cmd.HomeScore, cmd.AwayScore)
	}); err != nil {
		return fmt.Errorf("score update: %w", err)
	}
	e.logger.Debug("score patched",
		"match_id", cmd.MatchID,
		"home_score", cmd.HomeScore,
		"away_score", cmd.AwayScore,
	)
	return nil
}

// applyNewPlayer inserts a roster entry with a zeroed stats row. Duplicate
// delivery is a no-op.
func (e *Engine) applyNewPlayer(ctx context.Context, cmd protocol.NewPlayer) error {
	rep := e.replica(cmd.MatchID)
	rep.mu.Lock()
	defer rep.mu.Unlock()

	m, err := e.store.GetMatch(ctx, cmd.MatchID)
	if err != nil {
		return fmt.Errorf("new player for unknown match %s: %w", cmd.MatchID, err)
	}
	if m.HasPlayer(cmd.PlayerID) {
		e.logger.Debug("new player ignored, already on roster",
			"match_id", cmd.MatchID,
			"player_id", cmd.PlayerID,
		)
		return nil
	}

	p := domain.Player{
		ID:   cmd.PlayerID,
		Name: cmd.Name,
		Side: domain.SideFromHomeFlag(cmd.IsHomeTeam),
	}
	if err := e.persist(ctx, "add roster entry", func() error {
		return e.store.AddRosterEntry(ctx, cmd.MatchID, p)
	}); err != nil {
		return err
	}
	e.logger.Info("player added to roster",
		"match_id", cmd.MatchID,
		"player_id", p.ID,
		"name", p.Name,
		"side", p.Side,
	)
	return nil
}

// buildEvent constructs a MatchEvent from resolved command fields. The
// team side always comes from the primary actor's roster entry, never from
// the wire, which keeps the side invariant intact at construction time. An
// assistant is only attached to goal events and only when on the roster.
func (e *Engine) buildEvent(m *domain.Match, kind domain.EventKind, ts time.Time, primaryID, secondaryID uuid.UUID) (domain.MatchEvent, error) {
	entry, ok := m.RosterEntry(primaryID)
	if !ok {
		return domain.MatchEvent{}, fmt.Errorf("primary actor %s: %w", primaryID, domain.ErrPlayerNotFound)
	}

	ev := domain.MatchEvent{
		ID:        uuid.New(),
		MatchID:   m.ID,
		Kind:      kind,
		Timestamp: ts,
		Side:      entry.Side,
		PrimaryID: entry.ID,
	}
	if kind == domain.EventKindGoal && secondaryID != uuid.Nil && m.HasPlayer(secondaryID) {
		ev.SecondaryID = secondaryID
	}
	return ev, nil
}

// recompute replaces every derived value on the aggregate with a fresh
// replay of the sorted event log.
func (e *Engine) recompute(m *domain.Match) {
	res := stats.Recompute(m.Log.EventsSorted(), m.Roster)
	m.HomeScore = res.HomeScore
	m.AwayScore = res.AwayScore
	m.Stats = res.Stats
	m.Awards = &res.Awards
}

// persist runs a store operation with the single synchronous retry the
// failure policy allows before a command is dropped.
func (e *Engine) persist(ctx context.Context, op string, fn func() error) error {
	if err := fn(); err != nil {
		e.logger.Warn("persistence failed, retrying once", "op", op, "error", err)
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
