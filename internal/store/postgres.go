// Package store persists room snapshots and archived bid ledgers. The core
// only sees the auction.SnapshotSink interface; Postgres is one
// implementation, Memory another.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

// Postgres writes snapshots to a room_snapshots table and flattens archived
// ledgers into archived_bids rows for querying. See schema.sql.
type Postgres struct {
	db *sql.DB
}

func Open(cfg Config) (*Postgres, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// SaveSnapshot stores the snapshot document and its archived bids in one
// transaction. Bid rows are idempotent on (item_id, seq) because snapshots
// repeat earlier archives.
func (p *Postgres) SaveSnapshot(ctx context.Context, snap *auction.RoomSnapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return withTx(ctx, p.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_snapshots (room_id, taken_at, complete, state)
			 VALUES ($1, $2, $3, $4)`,
			snap.RoomID, snap.TakenAt, snap.Complete, state,
		); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		for _, ledger := range snap.Ledgers {
			for _, bid := range ledger.Bids {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO archived_bids (room_id, item_id, team_id, amount, seq, placed_at)
					 VALUES ($1, $2, $3, $4, $5, $6)
					 ON CONFLICT (item_id, seq) DO NOTHING`,
					snap.RoomID, bid.ItemID, bid.TeamID, bid.Amount, bid.Seq, bid.PlacedAt,
				); err != nil {
					return fmt.Errorf("insert archived bid: %w", err)
				}
			}
		}
		return nil
	})
}

// LatestSnapshot returns the most recent snapshot for a room.
func (p *Postgres) LatestSnapshot(ctx context.Context, roomID string) (*auction.RoomSnapshot, error) {
	var state []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT state FROM room_snapshots WHERE room_id = $1 ORDER BY taken_at DESC LIMIT 1`,
		roomID,
	).Scan(&state)
	if err != nil {
		return nil, err
	}
	var snap auction.RoomSnapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
