package auction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type machineFixture struct {
	machine *Machine
	purse   *PurseBook
	fake    *clockwork.FakeClock
	notify  chan uint64
	teams   []TeamSeed
	items   []*AuctionItem
}

func newMachineFixture(t *testing.T, rules Rules, itemCount int) *machineFixture {
	t.Helper()
	teams := []TeamSeed{
		{ID: uuid.New(), Name: "Chennai"},
		{ID: uuid.New(), Name: "Mumbai"},
	}
	seeds := make([]ItemSeed, itemCount)
	for i := range seeds {
		seeds[i] = ItemSeed{Name: "Player", BasePrice: 100}
	}
	fake := clockwork.NewFakeClock()
	notify := make(chan uint64, 8)
	purse := NewPurseBook(rules, teams)
	m := NewMachine(seeds, purse, rules, fake, func(gen uint64) { notify <- gen })
	return &machineFixture{machine: m, purse: purse, fake: fake, notify: notify, teams: teams, items: m.Items()}
}

func (f *machineFixture) expire(t *testing.T) *Resolution {
	t.Helper()
	f.fake.Advance(f.machine.Clock().Remaining())
	res := f.machine.Expire(<-f.notify)
	require.NotNil(t, res)
	return res
}

func TestMachine_SoldFlow(t *testing.T) {
	f := newMachineFixture(t, testRules(), 2)

	item, err := f.machine.OpenCurrent()
	require.NoError(t, err)
	require.Equal(t, ItemOpen, item.Status)
	require.Equal(t, int64(100), f.machine.MinNextBid())

	_, _, err = f.machine.SubmitBid(f.teams[0].ID, item.ID, 100)
	require.NoError(t, err)
	_, _, err = f.machine.SubmitBid(f.teams[1].ID, item.ID, 120)
	require.NoError(t, err)
	require.Equal(t, int64(130), f.machine.MinNextBid())

	res := f.expire(t)
	require.Equal(t, ItemSold, res.Item.Status)
	require.NotNil(t, res.Winning)
	require.Equal(t, f.teams[1].ID, res.Winning.TeamID)
	require.Equal(t, int64(120), res.Winning.Amount)
	require.False(t, res.RoomComplete)
	require.Nil(t, res.Integrity)

	winner, _ := f.purse.Team(f.teams[1].ID)
	require.Equal(t, int64(880), winner.Purse)
	require.Equal(t, []uuid.UUID{item.ID}, winner.Roster)

	loser, _ := f.purse.Team(f.teams[0].ID)
	require.Equal(t, int64(1000), loser.Purse)
	require.Zero(t, f.purse.Reserved(f.teams[0].ID))

	require.Equal(t, 1, f.machine.SoldCount())
	archives := f.machine.Archives()
	require.Len(t, archives, 1)
	require.Len(t, archives[0].Bids, 2)
}

func TestMachine_ZeroBidExpiryGoesUnsold(t *testing.T) {
	f := newMachineFixture(t, testRules(), 1)

	item, err := f.machine.OpenCurrent()
	require.NoError(t, err)

	res := f.expire(t)
	require.Equal(t, ItemUnsold, res.Item.Status)
	require.True(t, res.Item.ReAuction)
	require.Nil(t, res.Winning)
	require.True(t, res.RoomComplete)

	// No purse mutation of any kind.
	for _, seed := range f.teams {
		tm, _ := f.purse.Team(seed.ID)
		require.Equal(t, int64(1000), tm.Purse)
		require.Empty(t, tm.Roster)
	}
	require.Equal(t, 1, f.machine.UnsoldCount())
	require.Empty(t, f.machine.Archives()[0].Bids)
	require.Same(t, item, res.Item)
}

func TestMachine_BidAfterResolutionRejectedClosed(t *testing.T) {
	f := newMachineFixture(t, testRules(), 2)

	item, _ := f.machine.OpenCurrent()
	_, _, err := f.machine.SubmitBid(f.teams[0].ID, item.ID, 100)
	require.NoError(t, err)
	f.expire(t)

	_, _, err = f.machine.SubmitBid(f.teams[1].ID, item.ID, 200)
	require.ErrorIs(t, err, ErrAuctionClosed, "late bid on a settled item is rejected, not dropped")

	// A bid aimed at the not-yet-opened next item.
	_, _, err = f.machine.SubmitBid(f.teams[1].ID, f.items[1].ID, 200)
	require.ErrorIs(t, err, ErrItemNotOpen)

	_, _, err = f.machine.SubmitBid(f.teams[1].ID, uuid.New(), 200)
	require.ErrorIs(t, err, ErrUnknownItem)
}

func TestMachine_OpenCurrentStateErrors(t *testing.T) {
	f := newMachineFixture(t, testRules(), 1)

	_, err := f.machine.OpenCurrent()
	require.NoError(t, err)
	_, err = f.machine.OpenCurrent()
	require.ErrorIs(t, err, ErrItemNotPending)

	f.expire(t)
	require.True(t, f.machine.Complete())
	_, err = f.machine.OpenCurrent()
	require.ErrorIs(t, err, ErrRoomComplete)
	_, _, err = f.machine.SubmitBid(f.teams[0].ID, f.items[0].ID, 100)
	require.ErrorIs(t, err, ErrRoomComplete)
}

func TestMachine_ForceClose(t *testing.T) {
	f := newMachineFixture(t, testRules(), 1)

	_, err := f.machine.ForceClose()
	require.ErrorIs(t, err, ErrItemNotOpen, "force close needs an open item")

	item, _ := f.machine.OpenCurrent()
	_, _, err = f.machine.SubmitBid(f.teams[0].ID, item.ID, 100)
	require.NoError(t, err)

	res, err := f.machine.ForceClose()
	require.NoError(t, err)
	require.Equal(t, ItemSold, res.Item.Status)
	require.Equal(t, f.teams[0].ID, res.Winning.TeamID)
	require.Equal(t, ClockCancelled, f.machine.Clock().State())
}

func TestMachine_StaleExpiryIgnored(t *testing.T) {
	f := newMachineFixture(t, testRules(), 2)

	item, _ := f.machine.OpenCurrent()
	_, _, err := f.machine.SubmitBid(f.teams[0].ID, item.ID, 100)
	require.NoError(t, err)

	// Force close cancels the running generation; the queued timer fires into
	// a dead generation and must resolve to nothing.
	gen := uint64(1)
	_, err = f.machine.ForceClose()
	require.NoError(t, err)
	require.Nil(t, f.machine.Expire(gen))

	// The next item's expiry still works.
	_, err = f.machine.OpenCurrent()
	require.NoError(t, err)
	res := f.expire(t)
	require.Equal(t, ItemUnsold, res.Item.Status)
}

func TestMachine_SnipeExtendsClock(t *testing.T) {
	f := newMachineFixture(t, testRules(), 1)

	item, _ := f.machine.OpenCurrent()
	f.fake.Advance(27 * time.Second) // 3s remaining, floor 5s

	_, ext, err := f.machine.SubmitBid(f.teams[0].ID, item.ID, 100)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, ext)
	require.Equal(t, 13*time.Second, f.machine.Clock().Remaining())

	// A rejected bid never extends.
	_, ext, err = f.machine.SubmitBid(f.teams[1].ID, item.ID, 100)
	require.ErrorIs(t, err, ErrBelowIncrement)
	require.Zero(t, ext)
	require.Equal(t, 13*time.Second, f.machine.Clock().Remaining())
}

func TestMachine_ExtensionSupersedesPendingExpiry(t *testing.T) {
	f := newMachineFixture(t, testRules(), 1)

	item, _ := f.machine.OpenCurrent()

	// The window elapses and the expiry notification is queued, but a bid is
	// dequeued first: it is accepted, extends the clock, and the queued expiry
	// must no longer settle the item.
	f.fake.Advance(30 * time.Second)
	stale := <-f.notify

	_, ext, err := f.machine.SubmitBid(f.teams[0].ID, item.ID, 100)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, ext)

	require.Nil(t, f.machine.Expire(stale), "pre-extension expiry is stale")
	require.Equal(t, ItemOpen, item.Status)
	require.False(t, f.machine.Complete())

	res := f.expire(t)
	require.Equal(t, ItemSold, res.Item.Status)
	require.Equal(t, f.teams[0].ID, res.Winning.TeamID)
}

func TestMachine_IntegrityFailureDegradesToUnsold(t *testing.T) {
	f := newMachineFixture(t, testRules(), 1)

	item, _ := f.machine.OpenCurrent()
	_, _, err := f.machine.SubmitBid(f.teams[0].ID, item.ID, 100)
	require.NoError(t, err)

	// Sabotage the reservation so the commit at settlement cannot match.
	f.purse.Release(f.teams[0].ID, item.ID)

	res := f.expire(t)
	require.NotNil(t, res.Integrity)
	require.Equal(t, item.ID, res.Integrity.ItemID)
	require.Equal(t, ItemUnsold, res.Item.Status)
	require.True(t, res.Item.ReAuction)
	require.Zero(t, res.Item.HighestBid)
	require.Equal(t, uuid.Nil, res.Item.HighestTeam)

	tm, _ := f.purse.Team(f.teams[0].ID)
	require.Equal(t, int64(1000), tm.Purse, "failed settlement must not charge the purse")
	require.Empty(t, tm.Roster)
}
