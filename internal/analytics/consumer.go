package analytics

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

// TeamStats aggregates a team's auction activity within one room.
type TeamStats struct {
	BidsPlaced int   `json:"bids_placed"`
	ItemsWon   int   `json:"items_won"`
	Spend      int64 `json:"spend"`
}

// RoomStats is the per-room rollup.
type RoomStats struct {
	Teams       map[uuid.UUID]*TeamStats `json:"teams"`
	ItemsSold   int                      `json:"items_sold"`
	ItemsUnsold int                      `json:"items_unsold"`
	Complete    bool                     `json:"complete"`
}

// Consumer subscribes to the mirrored event stream and keeps in-memory
// aggregates. Delivery is at-least-once, so Apply de-duplicates by room
// sequence number; applying a replayed stream twice yields the same stats.
type Consumer struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*RoomStats
	seen  map[uuid.UUID]map[uint64]struct{}

	sub *nats.Subscription
}

func NewConsumer() *Consumer {
	return &Consumer{
		rooms: make(map[uuid.UUID]*RoomStats),
		seen:  make(map[uuid.UUID]map[uint64]struct{}),
	}
}

// Subscribe attaches the consumer to the mirrored stream on nc.
func (c *Consumer) Subscribe(nc *nats.Conn) error {
	sub, err := nc.Subscribe(SubjectPrefix+".>", func(msg *nats.Msg) {
		var ev auction.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed analytics event")
			return
		}
		c.Apply(ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe analytics stream: %w", err)
	}
	c.sub = sub
	return nil
}

func (c *Consumer) Unsubscribe() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
}

// Apply folds one event into the aggregates. Events without a room sequence
// (targeted rejections never reach the mirror) and duplicates are ignored.
func (c *Consumer) Apply(ev auction.Event) {
	if ev.Seq == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	seen, ok := c.seen[ev.RoomID]
	if !ok {
		seen = make(map[uint64]struct{})
		c.seen[ev.RoomID] = seen
	}
	if _, dup := seen[ev.Seq]; dup {
		return
	}
	seen[ev.Seq] = struct{}{}

	stats, ok := c.rooms[ev.RoomID]
	if !ok {
		stats = &RoomStats{Teams: make(map[uuid.UUID]*TeamStats)}
		c.rooms[ev.RoomID] = stats
	}

	payload, err := auction.ParseEventPayload(ev)
	if err != nil {
		log.Warn().Err(err).Str("type", string(ev.Type)).Msg("undecodable analytics payload")
		return
	}

	switch p := payload.(type) {
	case auction.BidAcceptedPayload:
		stats.team(p.TeamID).BidsPlaced++
	case auction.ItemSoldPayload:
		t := stats.team(p.TeamID)
		t.ItemsWon++
		t.Spend += p.Amount
		stats.ItemsSold++
	case auction.ItemUnsoldPayload:
		stats.ItemsUnsold++
	case auction.RoomCompletePayload:
		stats.Complete = true
	}
}

func (s *RoomStats) team(id uuid.UUID) *TeamStats {
	t, ok := s.Teams[id]
	if !ok {
		t = &TeamStats{}
		s.Teams[id] = t
	}
	return t
}

// Room returns a copy of the aggregates for one room.
func (c *Consumer) Room(roomID uuid.UUID) (RoomStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats, ok := c.rooms[roomID]
	if !ok {
		return RoomStats{}, false
	}
	out := RoomStats{
		Teams:       make(map[uuid.UUID]*TeamStats, len(stats.Teams)),
		ItemsSold:   stats.ItemsSold,
		ItemsUnsold: stats.ItemsUnsold,
		Complete:    stats.Complete,
	}
	for id, t := range stats.Teams {
		cp := *t
		out.Teams[id] = &cp
	}
	return out, true
}
