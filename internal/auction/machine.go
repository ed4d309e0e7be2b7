package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// LedgerArchive is a closed item's full bid history, kept for snapshots and
// the analytics surface after the live ledger is discarded.
type LedgerArchive struct {
	ItemID uuid.UUID `json:"item_id"`
	Bids   []Bid     `json:"bids"`
}

// Resolution describes the outcome of closing an item.
type Resolution struct {
	Item         *AuctionItem
	Winning      *Bid // nil when unsold
	Integrity    *IntegrityError
	RoomComplete bool
}

// Machine runs the item lifecycle for one room: pending → open → closing →
// sold/unsold, advancing through the item queue until none remain. It owns
// the clock and the current item's ledger and is only ever driven from the
// room actor goroutine.
type Machine struct {
	items   []*AuctionItem
	current int
	purse   *PurseBook
	rules   Rules
	clock   *ItemClock
	clk     clockwork.Clock
	ledger  *BidLedger

	archives []LedgerArchive
	sold     int
	unsold   int
}

// NewMachine builds the machine for a room. notify receives clock expiry
// generations and must route them back through the room's inbox.
func NewMachine(seeds []ItemSeed, purse *PurseBook, rules Rules, clk clockwork.Clock, notify func(gen uint64)) *Machine {
	items := make([]*AuctionItem, len(seeds))
	for i, s := range seeds {
		id := s.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		items[i] = &AuctionItem{ID: id, Name: s.Name, BasePrice: s.BasePrice, Status: ItemPending}
	}
	return &Machine{
		items: items,
		purse: purse,
		rules: rules,
		clock: NewItemClock(clk, rules, notify),
		clk:   clk,
	}
}

// CurrentItem returns the item at the queue head, nil when the room is done.
func (m *Machine) CurrentItem() *AuctionItem {
	if m.current >= len(m.items) {
		return nil
	}
	return m.items[m.current]
}

// Items returns the full queue in auction order.
func (m *Machine) Items() []*AuctionItem { return m.items }

// Complete reports whether every item has been resolved.
func (m *Machine) Complete() bool { return m.current >= len(m.items) }

func (m *Machine) Clock() *ItemClock { return m.clock }

func (m *Machine) Archives() []LedgerArchive {
	return append([]LedgerArchive(nil), m.archives...)
}

func (m *Machine) SoldCount() int   { return m.sold }
func (m *Machine) UnsoldCount() int { return m.unsold }

// MinNextBid is the lowest amount the live ledger would accept, zero when no
// item is open.
func (m *Machine) MinNextBid() int64 {
	if m.ledger == nil {
		return 0
	}
	return m.ledger.MinAcceptable()
}

// OpenCurrent transitions the queue head from pending to open: fresh ledger,
// clock armed. Only the host triggers this, via the room actor.
func (m *Machine) OpenCurrent() (*AuctionItem, error) {
	item := m.CurrentItem()
	if item == nil {
		return nil, ErrRoomComplete
	}
	if item.Status != ItemPending {
		return nil, ErrItemNotPending
	}
	item.Status = ItemOpen
	m.ledger = NewBidLedger(item, m.purse, m.rules)
	m.clock.Start()
	return item, nil
}

// SubmitBid routes a bid to the live ledger and applies the anti-snipe rule
// on acceptance. The returned duration is the clock extension, zero if none.
func (m *Machine) SubmitBid(teamID uuid.UUID, itemID uuid.UUID, amount int64) (Bid, time.Duration, error) {
	item := m.CurrentItem()
	if item == nil {
		return Bid{}, 0, ErrRoomComplete
	}
	if itemID != item.ID {
		// Bids race item transitions; one aimed at an already-closed item is
		// rejected as closed, never silently dropped.
		for _, it := range m.items {
			if it.ID == itemID {
				if it.Status == ItemSold || it.Status == ItemUnsold || it.Status == ItemClosing {
					return Bid{}, 0, ErrAuctionClosed
				}
				return Bid{}, 0, ErrItemNotOpen
			}
		}
		return Bid{}, 0, ErrUnknownItem
	}
	if m.ledger == nil {
		return Bid{}, 0, ErrItemNotOpen
	}
	bid, err := m.ledger.Submit(teamID, amount, m.clk.Now())
	if err != nil {
		return Bid{}, 0, err
	}
	ext, _ := m.clock.MaybeExtend()
	return bid, ext, nil
}

// Expire handles a clock expiry notification. Stale generations (the clock
// was cancelled or restarted since the timer fired) resolve to nil.
func (m *Machine) Expire(gen uint64) *Resolution {
	if !m.clock.Expire(gen) {
		return nil
	}
	return m.resolve()
}

// ForceClose is the admin path: cancel the clock and settle the open item
// immediately. It arrives through the same inbox as bids, so it cannot
// interleave with a partially processed one.
func (m *Machine) ForceClose() (*Resolution, error) {
	item := m.CurrentItem()
	if item == nil {
		return nil, ErrRoomComplete
	}
	if item.Status != ItemOpen {
		return nil, ErrItemNotOpen
	}
	m.clock.Cancel()
	return m.resolve(), nil
}

// resolve runs the closing transition for the current item: sold when a
// highest bid exists and its reservation commits, unsold otherwise. The
// ledger is archived and the queue advances; the item is immutable from here.
func (m *Machine) resolve() *Resolution {
	item := m.CurrentItem()
	item.Status = ItemClosing

	res := &Resolution{Item: item}
	if highest, ok := m.ledger.Highest(); ok {
		if err := m.purse.Commit(highest.TeamID, item.ID, highest.Amount); err != nil {
			// Reservation happened at acceptance time, so this commit cannot
			// legitimately fail; degrade to unsold and surface the violation.
			var ierr *IntegrityError
			if e, isIntegrity := err.(*IntegrityError); isIntegrity {
				ierr = e
			} else {
				ierr = &IntegrityError{ItemID: item.ID, Detail: err.Error()}
			}
			res.Integrity = ierr
			m.purse.Release(highest.TeamID, item.ID)
			item.Status = ItemUnsold
			item.ReAuction = true
			item.HighestBid = 0
			item.HighestTeam = uuid.Nil
			m.unsold++
		} else {
			item.Status = ItemSold
			res.Winning = &highest
			m.sold++
		}
	} else {
		item.Status = ItemUnsold
		item.ReAuction = true
		m.unsold++
	}

	m.archives = append(m.archives, LedgerArchive{ItemID: item.ID, Bids: m.ledger.Bids()})
	m.ledger = nil
	m.current++
	res.RoomComplete = m.Complete()
	return res
}
