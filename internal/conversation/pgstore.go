package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSnapshotID names the row holding the conversation document.
const DefaultSnapshotID = "conversations"

// PGQuerier is the subset of *pgxpool.Pool used by PGPersister.
type PGQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGPersister keeps the conversation document in one jsonb row of the
// conversation_snapshots table.
type PGPersister struct {
	db PGQuerier
	id string
}

// NewPGPersister creates a persister on db. An empty id uses DefaultSnapshotID.
func NewPGPersister(db PGQuerier, id string) (*PGPersister, error) {
	if db == nil {
		return nil, errors.New("postgres querier is required")
	}
	if id == "" {
		id = DefaultSnapshotID
	}
	return &PGPersister{db: db, id: id}, nil
}

// Load reads the snapshot row; a missing row yields an empty set.
func (p *PGPersister) Load(ctx context.Context) (map[string]*Conversation, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT document FROM conversation_snapshots WHERE id = $1`, p.id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]*Conversation{}, nil
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	out := map[string]*Conversation{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return out, nil
}

// Save upserts the full document.
func (p *PGPersister) Save(ctx context.Context, snapshot map[string]*Conversation) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = p.db.Exec(ctx, `INSERT INTO conversation_snapshots (id, document, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`, p.id, string(raw))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
