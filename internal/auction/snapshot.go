package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RoomSnapshot is the serializable view of a room handed to external durable
// storage. The core does not care what technology stores it.
type RoomSnapshot struct {
	RoomID   uuid.UUID       `json:"room_id"`
	Name     string          `json:"name"`
	TakenAt  time.Time       `json:"taken_at"`
	Complete bool            `json:"complete"`
	Items    []ItemSnapshot  `json:"items"`
	Teams    []TeamSnapshot  `json:"teams"`
	Ledgers  []LedgerArchive `json:"ledgers"`
}

type ItemSnapshot struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	BasePrice int64      `json:"base_price"`
	Status    ItemStatus `json:"status"`
	SoldTo    *uuid.UUID `json:"sold_to,omitempty"`
	SoldFor   int64      `json:"sold_for,omitempty"`
	ReAuction bool       `json:"re_auction,omitempty"`
}

type TeamSnapshot struct {
	ID     uuid.UUID   `json:"id"`
	Name   string      `json:"name"`
	Purse  int64       `json:"purse"`
	Roster []uuid.UUID `json:"roster"`
}

// SnapshotSink receives room snapshots after every item resolution and on
// room completion. Implementations live outside the core; writes happen off
// the room actor goroutine.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap *RoomSnapshot) error
}
