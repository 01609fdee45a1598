package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warfront-game/api/internal/model"
)

// SessionRepo handles session and session_player database operations.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a new session record with its player roster.
func (r *SessionRepo) Create(ctx context.Context, code string, seed int64, players []model.SessionPlayer) (*model.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	var s model.Session
	err = tx.QueryRowContext(ctx,
		`INSERT INTO sessions (code, seed, status)
		 VALUES ($1, $2, 'waiting')
		 RETURNING code, status, seed, created_at`,
		code, seed,
	).Scan(&s.Code, &s.Status, &s.Seed, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	for _, p := range players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_players (session_code, name, color, position)
			 VALUES ($1, $2, $3, $4)`,
			code, p.Name, p.Color, p.Position,
		); err != nil {
			return nil, fmt.Errorf("add session player: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}
	s.Players = players
	return &s, nil
}

// FindByCode returns a session by code with its players, or nil if absent.
func (r *SessionRepo) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	var s model.Session
	var winner sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT code, status, winner, seed, created_at, started_at, finished_at
		 FROM sessions WHERE code = $1`, code,
	).Scan(&s.Code, &s.Status, &winner, &s.Seed, &s.CreatedAt, &s.StartedAt, &s.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	s.Winner = winner.String

	players, err := r.listPlayers(ctx, code)
	if err != nil {
		return nil, err
	}
	s.Players = players
	return &s, nil
}

// ListOpen returns sessions in "waiting" status.
func (r *SessionRepo) ListOpen(ctx context.Context) ([]model.Session, error) {
	return r.listByStatus(ctx, "waiting")
}

// ListActive returns sessions in "active" status. Used on startup to decide
// which live states to recover from the state store.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	return r.listByStatus(ctx, "active")
}

func (r *SessionRepo) listByStatus(ctx context.Context, status string) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, status, seed, created_at
		 FROM sessions WHERE status = $1 ORDER BY created_at DESC LIMIT 100`, status)
	if err != nil {
		return nil, fmt.Errorf("list %s sessions: %w", status, err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.Code, &s.Status, &s.Seed, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SetActive marks a session active and stamps started_at.
func (r *SessionRepo) SetActive(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'active', started_at = NOW() WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("set session active: %w", err)
	}
	return nil
}

// SetFinished marks a session finished with its winner.
func (r *SessionRepo) SetFinished(ctx context.Context, code, winner string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'finished', winner = $2, finished_at = NOW() WHERE code = $1`,
		code, winner)
	if err != nil {
		return fmt.Errorf("set session finished: %w", err)
	}
	return nil
}

// Delete removes a session and its players.
func (r *SessionRepo) Delete(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepo) listPlayers(ctx context.Context, code string) ([]model.SessionPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_code, name, color, position
		 FROM session_players WHERE session_code = $1 ORDER BY position`, code)
	if err != nil {
		return nil, fmt.Errorf("list session players: %w", err)
	}
	defer rows.Close()

	var players []model.SessionPlayer
	for rows.Next() {
		var p model.SessionPlayer
		if err := rows.Scan(&p.SessionCode, &p.Name, &p.Color, &p.Position); err != nil {
			return nil, fmt.Errorf("scan session player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}
