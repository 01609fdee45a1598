package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/warfront-game/api/internal/model"
)

// SessionRepository defines durable session record operations (Postgres).
type SessionRepository interface {
	Create(ctx context.Context, code string, seed int64, players []model.SessionPlayer) (*model.Session, error)
	FindByCode(ctx context.Context, code string) (*model.Session, error)
	ListOpen(ctx context.Context) ([]model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	SetActive(ctx context.Context, code string) error
	SetFinished(ctx context.Context, code, winner string) error
	Delete(ctx context.Context, code string) error
}

// StateStore defines live session state operations (Redis). SaveState must
// complete before the matching broadcast goes out so durable storage is
// never behind what clients have been shown.
type StateStore interface {
	SaveState(ctx context.Context, code string, state json.RawMessage) error
	LoadState(ctx context.Context, code string) (json.RawMessage, error)
	DeleteState(ctx context.Context, code string) error
	SetTurnTimer(ctx context.Context, code string, deadline time.Time) error
	ClearTurnTimer(ctx context.Context, code string) error
}
