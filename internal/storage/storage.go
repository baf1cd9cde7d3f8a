package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a conversation session at rest: enough for a reconnecting
// client to show where the session stands. The interpreter itself is not
// serialized; a snapshot is a view, not a resume point.
type Snapshot struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"player_id,omitempty"`
	Document  string    `json:"document"`
	Language  string    `json:"language,omitempty"`
	State     string    `json:"state"`
	LineID    string    `json:"line_id,omitempty"`
	Nametag   string    `json:"nametag,omitempty"`
	Text      string    `json:"text,omitempty"`
	Revealed  int       `json:"revealed,omitempty"`
	Choices   []string  `json:"choices,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Storage persists session snapshots and player flags
type Storage interface {
	Ping(ctx context.Context) error
	Close() error

	SaveSession(ctx context.Context, id uuid.UUID, snap *Snapshot) error
	LoadSession(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	GetFlags(ctx context.Context, playerID string) (map[string]string, error)
	SetFlag(ctx context.Context, playerID, key, value string) error
	SetFlags(ctx context.Context, playerID string, flags map[string]string) error
}
