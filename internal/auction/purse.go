package auction

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type hold struct {
	itemID uuid.UUID
	amount int64
}

// PurseBook tracks every team's remaining budget, provisional holds and
// roster. All mutation happens inside the owning room actor, so the book
// itself carries no locking.
//
// A hold is placed when a bid is accepted and either released (outbid) or
// committed (item sold). Commit is the single atomic step that deducts the
// purse and appends to the roster; there is no intermediate state where one
// happened without the other.
type PurseBook struct {
	teams map[uuid.UUID]*Team
	holds map[uuid.UUID]hold // one active hold per team: single current item
	rules Rules
}

func NewPurseBook(rules Rules, seeds []TeamSeed) *PurseBook {
	b := &PurseBook{
		teams: make(map[uuid.UUID]*Team, len(seeds)),
		holds: make(map[uuid.UUID]hold),
		rules: rules,
	}
	for _, s := range seeds {
		b.teams[s.ID] = &Team{ID: s.ID, Name: s.Name, Purse: rules.InitialPurse}
	}
	return b
}

func (b *PurseBook) Team(id uuid.UUID) (*Team, bool) {
	t, ok := b.teams[id]
	return t, ok
}

// Teams returns a stable-ordered copy of all teams.
func (b *PurseBook) Teams() []Team {
	out := make([]Team, 0, len(b.teams))
	for _, t := range b.teams {
		cp := *t
		cp.Roster = append([]uuid.UUID(nil), t.Roster...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reserved returns the team's current provisional hold.
func (b *PurseBook) Reserved(teamID uuid.UUID) int64 {
	if h, ok := b.holds[teamID]; ok {
		return h.amount
	}
	return 0
}

// CheckFunds verifies that amount fits the team's purse while leaving enough
// for minimum bids on every remaining mandatory roster slot. A hold the team
// already has on this same item does not count against it: raising your own
// bid replaces the hold rather than stacking on it.
func (b *PurseBook) CheckFunds(teamID, itemID uuid.UUID, amount int64) error {
	t, ok := b.teams[teamID]
	if !ok {
		return ErrUnknownTeam
	}
	var otherHolds int64
	if h, ok := b.holds[teamID]; ok && h.itemID != itemID {
		otherHolds = h.amount
	}
	mandatory := int64(b.rules.MinRoster - len(t.Roster) - 1)
	if mandatory < 0 {
		mandatory = 0
	}
	if amount+otherHolds+mandatory*b.rules.BasePriceFloor > t.Purse {
		return fmt.Errorf("%w: need %d for bid plus %d reserved for %d mandatory slots, purse is %d",
			ErrInsufficientFunds, amount, mandatory*b.rules.BasePriceFloor, mandatory, t.Purse-otherHolds)
	}
	return nil
}

// CheckRoster verifies the team still has a roster slot to fill.
func (b *PurseBook) CheckRoster(teamID uuid.UUID) error {
	t, ok := b.teams[teamID]
	if !ok {
		return ErrUnknownTeam
	}
	if len(t.Roster) >= b.rules.MaxRoster {
		return fmt.Errorf("%w: %d of %d slots used", ErrRosterFull, len(t.Roster), b.rules.MaxRoster)
	}
	return nil
}

// Reserve places (or replaces) the team's provisional hold for an item.
// Feasibility must have been checked first; Reserve does not re-validate.
func (b *PurseBook) Reserve(teamID, itemID uuid.UUID, amount int64) {
	b.holds[teamID] = hold{itemID: itemID, amount: amount}
}

// Release drops the team's hold on an item, e.g. after being outbid.
func (b *PurseBook) Release(teamID, itemID uuid.UUID) {
	if h, ok := b.holds[teamID]; ok && h.itemID == itemID {
		delete(b.holds, teamID)
	}
}

// Commit converts the team's hold on an item into a purchase: the hold is
// consumed, the purse is deducted and the item joins the roster in one step.
// Any mismatch between the hold and the requested commit is an integrity
// violation: with reservation at bid-acceptance time this is structurally
// unreachable, and hitting it indicates a reservation/commit desync.
func (b *PurseBook) Commit(teamID, itemID uuid.UUID, amount int64) error {
	t, ok := b.teams[teamID]
	if !ok {
		return &IntegrityError{ItemID: itemID, Detail: fmt.Sprintf("commit for unknown team %s", teamID)}
	}
	h, held := b.holds[teamID]
	if !held || h.itemID != itemID || h.amount != amount {
		return &IntegrityError{ItemID: itemID, Detail: fmt.Sprintf("no matching reservation for commit of %d by team %s", amount, teamID)}
	}
	if amount > t.Purse {
		return &IntegrityError{ItemID: itemID, Detail: fmt.Sprintf("commit of %d exceeds purse %d for team %s", amount, t.Purse, teamID)}
	}
	delete(b.holds, teamID)
	t.Purse -= amount
	t.Roster = append(t.Roster, itemID)
	return nil
}
