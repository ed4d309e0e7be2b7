package auction

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the lifecycle state of a single auction lot.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemOpen    ItemStatus = "open"
	ItemClosing ItemStatus = "closing"
	ItemSold    ItemStatus = "sold"
	ItemUnsold  ItemStatus = "unsold"
)

// AuctionItem is one auctionable lot in a room. It is created at room setup,
// mutated only by the room's machine, and frozen once sold or unsold.
type AuctionItem struct {
	ID          uuid.UUID
	Name        string
	BasePrice   int64
	Status      ItemStatus
	HighestBid  int64
	HighestTeam uuid.UUID // uuid.Nil until the first accepted bid
	ReAuction   bool      // set when the item went unsold and may be queued again
}

// Bid is an accepted bid. Rejected bids are never stored, only reported back
// to the submitter.
type Bid struct {
	ItemID   uuid.UUID `json:"item_id"`
	TeamID   uuid.UUID `json:"team_id"`
	Amount   int64     `json:"amount"`
	Seq      uint64    `json:"seq"` // monotonic per item, gap-free over accepted bids
	PlacedAt time.Time `json:"placed_at"`
}

// Team is a bidding franchise. Purse holds the remaining budget after
// committed purchases; provisional holds live in the PurseBook, not here.
type Team struct {
	ID     uuid.UUID
	Name   string
	Purse  int64
	Roster []uuid.UUID // item ids won by this team
}

// TeamSeed and ItemSeed describe room contents at creation time.
type TeamSeed struct {
	ID   uuid.UUID
	Name string
}

type ItemSeed struct {
	ID        uuid.UUID
	Name      string
	BasePrice int64
}

// RoomConfig is everything needed to start a room actor.
type RoomConfig struct {
	ID     uuid.UUID
	Name   string
	HostID string
	Teams  []TeamSeed
	Items  []ItemSeed
	Rules  Rules
}
