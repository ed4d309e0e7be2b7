package auction

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation errors: the bid never reached the business rules.
var (
	ErrInvalidAmount  = errors.New("bid amount must be positive")
	ErrUnknownTeam    = errors.New("unknown team")
	ErrUnknownItem    = errors.New("item is not part of this room")
	ErrNotParticipant = errors.New("participant has not joined the room")
	ErrSpectator      = errors.New("spectators cannot bid")
)

// Business rule rejections: valid request, refused with no state change.
var (
	ErrItemNotOpen       = errors.New("item is not open for bidding")
	ErrAuctionClosed     = errors.New("bidding for this item has closed")
	ErrBelowIncrement    = errors.New("bid is below the minimum increment")
	ErrInsufficientFunds = errors.New("purse cannot cover this bid")
	ErrRosterFull        = errors.New("team roster is full")
)

// Host / lifecycle errors.
var (
	ErrNotHost        = errors.New("participant is not the room host")
	ErrItemNotPending = errors.New("current item has already been opened")
	ErrRoomComplete   = errors.New("no items remain in this room")
)

// IntegrityError reports a broken internal invariant, e.g. a purse commit
// failing after the bid was accepted with a reservation in place. It is never
// swallowed: the item degrades to unsold and room admins are alerted.
type IntegrityError struct {
	ItemID uuid.UUID
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on item %s: %s", e.ItemID, e.Detail)
}

// ReasonOf maps a rejection error to its wire code for event payloads.
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrBelowIncrement):
		return "BELOW_INCREMENT"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrRosterFull):
		return "ROSTER_FULL"
	case errors.Is(err, ErrAuctionClosed):
		return "AUCTION_CLOSED"
	case errors.Is(err, ErrItemNotOpen):
		return "ITEM_NOT_OPEN"
	case errors.Is(err, ErrRoomComplete):
		return "ROOM_COMPLETE"
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrUnknownTeam),
		errors.Is(err, ErrUnknownItem),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrSpectator):
		return "INVALID_BID"
	default:
		return "INTERNAL"
	}
}

// IsRejection reports whether err is a synchronous bid rejection rather than
// an internal failure.
func IsRejection(err error) bool {
	return err != nil && ReasonOf(err) != "INTERNAL"
}
