// Package postgres persists match replicas in PostgreSQL. It implements
// the reconciliation engine's store boundary: matches own their roster,
// stats and event rows, and deleting a match cascades to all of them.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xinchenjiangau/PickUpSoccer/internal/config"
	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
)

// Store provides PostgreSQL-based data access
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a new PostgreSQL store
func NewStore(cfg *config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Pool returns the underlying connection pool
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// RunMigrations executes database migrations
func (s *Store) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			status VARCHAR(20) NOT NULL DEFAULT 'not_started',
			home_team_name VARCHAR(255) NOT NULL,
			away_team_name VARCHAR(255) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			duration_minutes INT NOT NULL DEFAULT 0,
			location VARCHAR(255) NOT NULL DEFAULT '',
			weather VARCHAR(64) NOT NULL DEFAULT '',
			referee VARCHAR(255) NOT NULL DEFAULT '',
			home_score INT NOT NULL DEFAULT 0,
			away_score INT NOT NULL DEFAULT 0,
			mvp_id UUID,
			top_scorer_id UUID,
			top_goalkeeper_id UUID,
			top_playmaker_id UUID,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS match_players (
			match_id UUID NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			player_id UUID NOT NULL,
			player_name VARCHAR(255) NOT NULL,
			side VARCHAR(8) NOT NULL,
			goals INT NOT NULL DEFAULT 0,
			assists INT NOT NULL DEFAULT 0,
			saves INT NOT NULL DEFAULT 0,
			fouls INT NOT NULL DEFAULT 0,
			minutes_played INT NOT NULL DEFAULT 0,
			performance DOUBLE PRECISION NOT NULL DEFAULT 0,
			joined_seq BIGSERIAL,
			PRIMARY KEY (match_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS match_events (
			id UUID PRIMARY KEY,
			match_id UUID NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			kind VARCHAR(20) NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			side VARCHAR(8) NOT NULL,
			primary_id UUID NOT NULL,
			secondary_id UUID,
			inserted_seq BIGSERIAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_match ON match_events(match_id, occurred_at, inserted_seq)`,
		`CREATE INDEX IF NOT EXISTS idx_match_players_player ON match_players(player_id)`,
	}

	for _, migration := range migrations {
		_, err := s.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	s.logger.Info("database migrations completed")
	return nil
}

// CreateMatch persists a new match aggregate with its roster and zeroed
// stats rows.
func (s *Store) CreateMatch(ctx context.Context, m *domain.Match) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)`, m.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking match existence: %w", err)
	}
	if exists {
		return domain.ErrMatchExists
	}

	query := `
		INSERT INTO matches (id, status, home_team_name, away_team_name, started_at,
			duration_minutes, location, weather, referee, home_score, away_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, query,
		m.ID,
		string(m.Status),
		m.HomeTeamName,
		m.AwayTeamName,
		m.StartedAt,
		m.DurationMinutes,
		m.Location,
		m.Weather,
		m.Referee,
		m.HomeScore,
		m.AwayScore,
	)
	if err != nil {
		return fmt.Errorf("creating match: %w", err)
	}

	for _, p := range m.Roster {
		if err := insertRosterEntry(ctx, tx, m.ID, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing match: %w", err)
	}
	return nil
}

// GetMatch fetches the full aggregate: match fields, roster, stats and
// event log.
func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	query := `
		SELECT id, status, home_team_name, away_team_name, started_at,
			duration_minutes, location, weather, referee, home_score, away_score,
			mvp_id, top_scorer_id, top_goalkeeper_id, top_playmaker_id
		FROM matches
		WHERE id = $1
	`
	m, err := scanMatch(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}

	if err := s.loadRoster(ctx, m); err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMatches returns all known matches, most recently started first
func (s *Store) ListMatches(ctx context.Context) ([]*domain.Match, error) {
	query := `
		SELECT id, status, home_team_name, away_team_name, started_at,
			duration_minutes, location, weather, referee, home_score, away_score,
			mvp_id, top_scorer_id, top_goalkeeper_id, top_playmaker_id
		FROM matches
		ORDER BY started_at DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}

	for _, m := range matches {
		if err := s.loadRoster(ctx, m); err != nil {
			return nil, err
		}
		if err := s.loadEvents(ctx, m); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

// DeleteMatch removes a match; roster, stats and events cascade
func (s *Store) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// InsertEvent appends one immutable event row
func (s *Store) InsertEvent(ctx context.Context, ev domain.MatchEvent) error {
	query := `
		INSERT INTO match_events (id, match_id, kind, occurred_at, side, primary_id, secondary_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	var secondary *uuid.UUID
	if ev.SecondaryID != uuid.Nil {
		secondary = &ev.SecondaryID
	}
	_, err := s.pool.Exec(ctx, query,
		ev.ID,
		ev.MatchID,
		string(ev.Kind),
		ev.Timestamp,
		string(ev.Side),
		ev.PrimaryID,
		secondary,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// DeleteEvents physically removes every event of a match
func (s *Store) DeleteEvents(ctx context.Context, matchID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM match_events WHERE match_id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	return nil
}

// AddRosterEntry inserts a roster entry plus its zeroed stats row
func (s *Store) AddRosterEntry(ctx context.Context, matchID uuid.UUID, p domain.Player) error {
	return insertRosterEntry(ctx, s.pool, matchID, p)
}

// UpdateScore patches the score fields only
func (s *Store) UpdateScore(ctx context.Context, matchID uuid.UUID, homeScore, awayScore int) error {
	query := `
		UPDATE matches
		SET home_score = $2, away_score = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := s.pool.Exec(ctx, query, matchID, homeScore, awayScore)
	if err != nil {
		return fmt.Errorf("updating score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// SaveAggregates writes back the derived state: status, score, awards and
// the full replacement set of stats rows.
func (s *Store) SaveAggregates(ctx context.Context, m *domain.Match) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE matches
		SET status = $2, home_score = $3, away_score = $4, duration_minutes = $5,
			mvp_id = $6, top_scorer_id = $7, top_goalkeeper_id = $8, top_playmaker_id = $9,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	var mvp, scorer, keeper, playmaker *uuid.UUID
	if m.Awards != nil {
		mvp = nullableID(m.Awards.MVP)
		scorer = nullableID(m.Awards.TopScorer)
		keeper = nullableID(m.Awards.TopGoalkeeper)
		playmaker = nullableID(m.Awards.TopPlaymaker)
	}
	result, err := tx.Exec(ctx, query,
		m.ID,
		string(m.Status),
		m.HomeScore,
		m.AwayScore,
		m.DurationMinutes,
		mvp, scorer, keeper, playmaker,
	)
	if err != nil {
		return fmt.Errorf("saving match aggregates: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}

	batch := &pgx.Batch{}
	statsQuery := `
		UPDATE match_players
		SET goals = $3, assists = $4, saves = $5, fouls = $6,
			minutes_played = $7, performance = $8
		WHERE match_id = $1 AND player_id = $2
	`
	for _, st := range m.Stats {
		batch.Queue(statsQuery, st.MatchID, st.PlayerID,
			st.Goals, st.Assists, st.Saves, st.Fouls,
			st.MinutesPlayed, st.Performance)
	}

	br := tx.SendBatch(ctx, batch)
	for range m.Stats {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("saving stats rows: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing stats batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing aggregates: %w", err)
	}
	return nil
}

// AllStats returns every stored stats row across matches
func (s *Store) AllStats(ctx context.Context) ([]domain.PlayerMatchStats, error) {
	query := `
		SELECT match_id, player_id, player_name, side,
			goals, assists, saves, fouls, minutes_played, performance
		FROM match_players
		ORDER BY match_id, joined_seq
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting all stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.PlayerMatchStats
	for rows.Next() {
		var st domain.PlayerMatchStats
		var side string
		err := rows.Scan(
			&st.MatchID,
			&st.PlayerID,
			&st.PlayerName,
			&side,
			&st.Goals,
			&st.Assists,
			&st.Saves,
			&st.Fouls,
			&st.MinutesPlayed,
			&st.Performance,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		st.Side = domain.TeamSide(side)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// execer is satisfied by both a pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// insertRosterEntry writes a roster entry with zeroed counters. Re-adding
// a player already on the roster is a no-op.
func insertRosterEntry(ctx context.Context, q execer, matchID uuid.UUID, p domain.Player) error {
	query := `
		INSERT INTO match_players (match_id, player_id, player_name, side)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, player_id) DO NOTHING
	`
	_, err := q.Exec(ctx, query, matchID, p.ID, p.Name, string(p.Side))
	if err != nil {
		return fmt.Errorf("inserting roster entry: %w", err)
	}
	return nil
}

// loadRoster populates the roster and stats slices of a match
func (s *Store) loadRoster(ctx context.Context, m *domain.Match) error {
	query := `
		SELECT player_id, player_name, side,
			goals, assists, saves, fouls, minutes_played, performance
		FROM match_players
		WHERE match_id = $1
		ORDER BY joined_seq
	`
	rows, err := s.pool.Query(ctx, query, m.ID)
	if err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.PlayerMatchStats
		var side string
		err := rows.Scan(
			&st.PlayerID,
			&st.PlayerName,
			&side,
			&st.Goals,
			&st.Assists,
			&st.Saves,
			&st.Fouls,
			&st.MinutesPlayed,
			&st.Performance,
		)
		if err != nil {
			return fmt.Errorf("scanning roster entry: %w", err)
		}
		st.MatchID = m.ID
		st.Side = domain.TeamSide(side)
		m.Roster = append(m.Roster, domain.Player{ID: st.PlayerID, Name: st.PlayerName, Side: st.Side})
		m.Stats = append(m.Stats, st)
	}
	return rows.Err()
}

// loadEvents populates the event log of a match in insertion order
func (s *Store) loadEvents(ctx context.Context, m *domain.Match) error {
	query := `
		SELECT id, kind, occurred_at, side, primary_id, secondary_id
		FROM match_events
		WHERE match_id = $1
		ORDER BY inserted_seq
	`
	rows, err := s.pool.Query(ctx, query, m.ID)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}
	defer rows.Close()

	if m.Log == nil {
		m.Log = domain.NewEventLog()
	}
	for rows.Next() {
		var ev domain.MatchEvent
		var kind, side string
		var secondary *uuid.UUID
		err := rows.Scan(&ev.ID, &kind, &ev.Timestamp, &side, &ev.PrimaryID, &secondary)
		if err != nil {
			return fmt.Errorf("scanning event: %w", err)
		}
		ev.MatchID = m.ID
		ev.Kind = domain.EventKind(kind)
		ev.Side = domain.TeamSide(side)
		if secondary != nil {
			ev.SecondaryID = *secondary
		}
		m.Log.Append(ev)
	}
	return rows.Err()
}

// nullableID maps uuid.Nil to a SQL NULL
func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// scanMatch reads one match row from either a Row or Rows
func scanMatch(row pgx.Row) (*domain.Match, error) {
	m := &domain.Match{Log: domain.NewEventLog()}
	var status string
	var mvp, scorer, keeper, playmaker *uuid.UUID
	err := row.Scan(
		&m.ID,
		&status,
		&m.HomeTeamName,
		&m.AwayTeamName,
		&m.StartedAt,
		&m.DurationMinutes,
		&m.Location,
		&m.Weather,
		&m.Referee,
		&m.HomeScore,
		&m.AwayScore,
		&mvp, &scorer, &keeper, &playmaker,
	)
	if err != nil {
		return nil, err
	}
	m.Status = domain.MatchStatus(status)
	if mvp != nil || scorer != nil || keeper != nil || playmaker != nil {
		m.Awards = &domain.MatchAwards{}
		if mvp != nil {
			m.Awards.MVP = *mvp
		}
		if scorer != nil {
			m.Awards.TopScorer = *scorer
		}
		if keeper != nil {
			m.Awards.TopGoalkeeper = *keeper
		}
		if playmaker != nil {
			m.Awards.TopPlaymaker = *playmaker
		}
	}
	return m, nil
}
