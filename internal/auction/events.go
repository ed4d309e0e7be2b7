package auction

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType tags the fixed set of room event kinds.
type EventType string

const (
	EventItemOpened    EventType = "ItemOpened"
	EventBidAccepted   EventType = "BidAccepted"
	EventBidRejected   EventType = "BidRejected"
	EventClockExtended EventType = "ClockExtended"
	EventItemSold      EventType = "ItemSold"
	EventItemUnsold    EventType = "ItemUnsold"
	EventRoomComplete  EventType = "RoomComplete"
	EventIntegrity     EventType = "IntegrityAlert"
)

// Event is the envelope broadcast to room participants and mirrored to the
// analytics stream. Seq is the per-room total order assigned by the
// broadcaster; targeted events (rejections, admin alerts) carry Seq 0 and are
// excluded from replay. Delivery is at-least-once, so consumers de-duplicate
// by (room_id, seq) and apply events idempotently.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	Seq       uint64          `json:"seq"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type ItemOpenedPayload struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	BasePrice int64     `json:"base_price"`
	Deadline  time.Time `json:"deadline"`
	WindowSec int       `json:"window_sec"`
}

type BidAcceptedPayload struct {
	ItemID   uuid.UUID `json:"item_id"`
	TeamID   uuid.UUID `json:"team_id"`
	Amount   int64     `json:"amount"`
	BidSeq   uint64    `json:"bid_seq"`
	PlacedAt time.Time `json:"placed_at"`
}

type BidRejectedPayload struct {
	ItemID uuid.UUID `json:"item_id"`
	TeamID uuid.UUID `json:"team_id,omitempty"`
	Amount int64     `json:"amount"`
	Reason string    `json:"reason"`
	Detail string    `json:"detail,omitempty"`
}

type ClockExtendedPayload struct {
	ItemID       uuid.UUID `json:"item_id"`
	ExtendedByMs int64     `json:"extended_by_ms"`
	Deadline     time.Time `json:"deadline"`
}

type ItemSoldPayload struct {
	ItemID uuid.UUID `json:"item_id"`
	TeamID uuid.UUID `json:"team_id"`
	Amount int64     `json:"amount"`
	BidSeq uint64    `json:"bid_seq"`
}

type ItemUnsoldPayload struct {
	ItemID    uuid.UUID `json:"item_id"`
	ReAuction bool      `json:"re_auction"`
}

type RoomCompletePayload struct {
	Sold   int `json:"sold"`
	Unsold int `json:"unsold"`
}

type IntegrityAlertPayload struct {
	ItemID uuid.UUID `json:"item_id"`
	Detail string    `json:"detail"`
}

// NewEvent builds an envelope for a payload. Marshal errors cannot occur for
// the payload types above, so the Data field is simply left nil on failure.
func NewEvent(roomID uuid.UUID, kind EventType, at time.Time, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:        uuid.New(),
		RoomID:    roomID,
		Type:      kind,
		Timestamp: at,
		Data:      data,
	}
}

// ParseEventPayload decodes an envelope's Data into its concrete payload.
func ParseEventPayload(ev Event) (any, error) {
	switch ev.Type {
	case EventItemOpened:
		var p ItemOpenedPayload
		return p, unmarshalInto(ev.Data, &p)
	case EventBidAccepted:
		var p BidAcceptedPayload
		return p, unmarshalInto(ev.Data, &p)
	case EventBidRejected:
		var p BidRejectedPayload
		return p, unmarshalInto(ev.Data, &p)
	case EventClockExtended:
		var p ClockExtendedPayload
		return p, unmarshalInto(ev.Data, &p)
	case EventItemSold:
		var p ItemSoldPayload
		return p, unmarshalInto(ev.Data, &p)
	case EventItemUnsold:
		var p ItemUnsoldPayload
		return p, unmarshalInto(ev.Data, &p)
	case EventRoomComplete:
		var p RoomCompletePayload
		return p, unmarshalInto(ev.Data, &p)
	case EventIntegrity:
		var p IntegrityAlertPayload
		return p, unmarshalInto(ev.Data, &p)
	default:
		return nil, nil
	}
}

func unmarshalInto(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}

// Publisher is what the room actor needs from the event fan-out layer.
// Publish assigns the room sequence and fans out to every subscriber;
// PublishTo delivers a targeted event to a single participant.
type Publisher interface {
	Publish(ev Event)
	PublishTo(participantID string, ev Event)
}
