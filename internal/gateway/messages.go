package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

// ClientMessage is a frame received from a participant. The transport
// guarantees framing only; ordering is enforced by the room actor's inbox.
type ClientMessage struct {
	Type   string    `json:"type"` // PlaceBid | OpenItem | ForceClose | Replay
	ItemID uuid.UUID `json:"item_id,omitempty"`
	Amount int64     `json:"amount,omitempty"`
	Since  uint64    `json:"since,omitempty"` // replay watermark
}

const (
	MsgPlaceBid   = "PlaceBid"
	MsgOpenItem   = "OpenItem"
	MsgForceClose = "ForceClose"
	MsgReplay     = "Replay"
)

// ParseClientMessage decodes and shape-checks a client frame.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("bad json: %w", err)
	}
	switch m.Type {
	case MsgPlaceBid:
		if m.ItemID == uuid.Nil {
			return ClientMessage{}, fmt.Errorf("PlaceBid requires item_id")
		}
		if m.Amount <= 0 {
			return ClientMessage{}, fmt.Errorf("PlaceBid requires a positive amount")
		}
	case MsgOpenItem, MsgForceClose, MsgReplay:
	default:
		return ClientMessage{}, fmt.Errorf("unknown message type %q", m.Type)
	}
	return m, nil
}

// StateFrame is sent once after a successful join, and carries the replay
// watermark the client should resume from.
type StateFrame struct {
	Type      string           `json:"type"`
	View      auction.RoomView `json:"view"`
	Watermark uint64           `json:"watermark"`
}

// ErrorFrame reports a failed host action or malformed frame.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func errorFrame(msg string) []byte {
	data, _ := json.Marshal(ErrorFrame{Type: "Error", Error: msg})
	return data
}
