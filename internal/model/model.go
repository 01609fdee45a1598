package model

import "time"

// Session is one game session's durable record. The live board state lives
// in the state store keyed by Code; this row tracks lifecycle and
// membership for listing and restart recovery.
type Session struct {
	Code       string          `json:"code"`
	Status     string          `json:"status"` // waiting, active, finished
	Winner     string          `json:"winner,omitempty"`
	Seed       int64           `json:"seed"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Players    []SessionPlayer `json:"players,omitempty"`
}

// SessionPlayer is a player's membership in a session. Position is the
// player's index in turn rotation order, immutable once the game starts.
type SessionPlayer struct {
	SessionCode string `json:"session_code"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Position    int    `json:"position"`
}
