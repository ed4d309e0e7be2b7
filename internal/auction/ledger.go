package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BidLedger is the append-only, totally ordered record of accepted bids for
// one open item. It lives exactly as long as the item's bidding session and
// is archived when the item closes.
//
// Submit enforces the bid constraints in a fixed order; the first failing
// check determines the rejection reason and a rejected bid leaves no partial
// effects. On acceptance the append, the highest-bid update and the purse
// hold swap all happen in the same single-writer step, so a reader can never
// observe a new highest bid without its ledger entry.
type BidLedger struct {
	item  *AuctionItem
	purse *PurseBook
	rules Rules
	bids  []Bid
}

func NewBidLedger(item *AuctionItem, purse *PurseBook, rules Rules) *BidLedger {
	return &BidLedger{item: item, purse: purse, rules: rules}
}

// MinAcceptable returns the lowest amount Submit would currently accept.
func (l *BidLedger) MinAcceptable() int64 {
	if l.item.HighestTeam == uuid.Nil {
		return l.item.BasePrice
	}
	return l.item.HighestBid + l.rules.Increment(l.item.HighestBid)
}

// Submit validates and records a bid. Checks run in order: item open,
// increment, purse feasibility, roster capacity.
func (l *BidLedger) Submit(teamID uuid.UUID, amount int64, now time.Time) (Bid, error) {
	if amount <= 0 {
		return Bid{}, ErrInvalidAmount
	}
	if _, ok := l.purse.Team(teamID); !ok {
		return Bid{}, ErrUnknownTeam
	}

	switch l.item.Status {
	case ItemOpen:
	case ItemPending:
		return Bid{}, ErrItemNotOpen
	default:
		return Bid{}, ErrAuctionClosed
	}

	if min := l.MinAcceptable(); amount < min {
		return Bid{}, fmt.Errorf("%w: minimum acceptable bid is %d, got %d", ErrBelowIncrement, min, amount)
	}
	if err := l.purse.CheckFunds(teamID, l.item.ID, amount); err != nil {
		return Bid{}, err
	}
	if err := l.purse.CheckRoster(teamID); err != nil {
		return Bid{}, err
	}

	bid := Bid{
		ItemID:   l.item.ID,
		TeamID:   teamID,
		Amount:   amount,
		Seq:      uint64(len(l.bids)) + 1,
		PlacedAt: now,
	}
	prevTeam := l.item.HighestTeam

	l.bids = append(l.bids, bid)
	l.item.HighestBid = amount
	l.item.HighestTeam = teamID
	l.purse.Reserve(teamID, l.item.ID, amount)
	if prevTeam != uuid.Nil && prevTeam != teamID {
		l.purse.Release(prevTeam, l.item.ID)
	}
	return bid, nil
}

// Highest returns the current winning bid, if any.
func (l *BidLedger) Highest() (Bid, bool) {
	if len(l.bids) == 0 {
		return Bid{}, false
	}
	return l.bids[len(l.bids)-1], true
}

func (l *BidLedger) Len() int { return len(l.bids) }

// Bids returns a copy of the accepted bids in arrival order.
func (l *BidLedger) Bids() []Bid {
	return append([]Bid(nil), l.bids...)
}
