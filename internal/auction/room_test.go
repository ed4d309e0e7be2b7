package auction

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// capturePub records published events; safe to call from the actor goroutine
// and inspect from the test.
type capturePub struct {
	mu       sync.Mutex
	events   []Event
	targeted map[string][]Event
}

func newCapturePub() *capturePub {
	return &capturePub{targeted: make(map[string][]Event)}
}

func (p *capturePub) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturePub) PublishTo(participantID string, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targeted[participantID] = append(p.targeted[participantID], ev)
}

func (p *capturePub) typed(kind EventType) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, ev := range p.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (p *capturePub) targetedFor(participantID string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.targeted[participantID]...)
}

type captureSink struct {
	mu    sync.Mutex
	snaps []*RoomSnapshot
}

func (s *captureSink) SaveSnapshot(_ context.Context, snap *RoomSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *captureSink) latest() *RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return nil
	}
	return s.snaps[len(s.snaps)-1]
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

type roomFixture struct {
	room  *Room
	pub   *capturePub
	sink  *captureSink
	fake  *clockwork.FakeClock
	cfg   RoomConfig
	teams []TeamSeed
}

const (
	hostID    = "host-1"
	bidderOne = "conn-alpha"
	bidderTwo = "conn-beta"
)

func newRoomFixture(t *testing.T, itemCount int) *roomFixture {
	t.Helper()
	teams := []TeamSeed{
		{ID: uuid.New(), Name: "Chennai"},
		{ID: uuid.New(), Name: "Mumbai"},
	}
	items := make([]ItemSeed, itemCount)
	for i := range items {
		items[i] = ItemSeed{Name: "Player", BasePrice: 100}
	}
	cfg := RoomConfig{
		ID:     uuid.New(),
		Name:   "mega auction",
		HostID: hostID,
		Teams:  teams,
		Items:  items,
		Rules:  testRules(),
	}
	pub := newCapturePub()
	sink := &captureSink{}
	fake := clockwork.NewFakeClock()
	room := NewRoom(context.Background(), cfg, fake, pub, sink)
	t.Cleanup(func() { room.Inbox() <- Shutdown{} })
	return &roomFixture{room: room, pub: pub, sink: sink, fake: fake, cfg: cfg, teams: teams}
}

func (f *roomFixture) join(t *testing.T, participantID string, teamID uuid.UUID) RoomView {
	t.Helper()
	reply := make(chan JoinResult, 1)
	f.room.Inbox() <- Join{ParticipantID: participantID, TeamID: teamID, Reply: reply}
	res := <-reply
	require.NoError(t, res.Err)
	return res.View
}

func (f *roomFixture) open(t *testing.T, participantID string) error {
	t.Helper()
	reply := make(chan error, 1)
	f.room.Inbox() <- OpenItem{ParticipantID: participantID, Reply: reply}
	return <-reply
}

func (f *roomFixture) bid(t *testing.T, participantID string, itemID uuid.UUID, amount int64) BidResult {
	t.Helper()
	reply := make(chan BidResult, 1)
	f.room.Inbox() <- PlaceBid{ParticipantID: participantID, ItemID: itemID, Amount: amount, Reply: reply}
	return <-reply
}

func (f *roomFixture) state(t *testing.T) RoomView {
	t.Helper()
	reply := make(chan RoomView, 1)
	f.room.Inbox() <- GetState{Reply: reply}
	return <-reply
}

func TestRoom_JoinAndView(t *testing.T) {
	f := newRoomFixture(t, 2)

	view := f.join(t, bidderOne, f.teams[0].ID)
	require.Equal(t, f.cfg.ID, view.RoomID)
	require.Equal(t, hostID, view.HostID)
	require.Len(t, view.Items, 2)
	require.Len(t, view.Teams, 2)
	require.Equal(t, 1, view.Participants)
	require.Equal(t, ClockIdle, view.ClockState)
	require.False(t, view.Complete)

	// Spectator join.
	spec := f.join(t, "watcher", uuid.Nil)
	require.Equal(t, 2, spec.Participants)

	reply := make(chan JoinResult, 1)
	f.room.Inbox() <- Join{ParticipantID: "ghost", TeamID: uuid.New(), Reply: reply}
	require.ErrorIs(t, (<-reply).Err, ErrUnknownTeam)
}

func TestRoom_BidGuards(t *testing.T) {
	f := newRoomFixture(t, 1)
	f.join(t, bidderOne, f.teams[0].ID)
	f.join(t, "watcher", uuid.Nil)
	require.NoError(t, f.open(t, hostID))

	itemID := f.state(t).Items[0].ID

	res := f.bid(t, "stranger", itemID, 100)
	require.ErrorIs(t, res.Err, ErrNotParticipant)

	res = f.bid(t, "watcher", itemID, 100)
	require.ErrorIs(t, res.Err, ErrSpectator)

	// Rejections fan out as targeted events to the submitter only.
	require.Eventually(t, func() bool {
		return len(f.pub.targetedFor("watcher")) == 1
	}, time.Second, 5*time.Millisecond)
	ev := f.pub.targetedFor("watcher")[0]
	require.Equal(t, EventBidRejected, ev.Type)
	require.Empty(t, f.pub.typed(EventBidRejected), "rejections never hit the shared stream")
}

func TestRoom_HostOnlyControls(t *testing.T) {
	f := newRoomFixture(t, 1)
	f.join(t, bidderOne, f.teams[0].ID)

	require.ErrorIs(t, f.open(t, bidderOne), ErrNotHost)

	reply := make(chan error, 1)
	f.room.Inbox() <- ForceClose{ParticipantID: bidderOne, Reply: reply}
	require.ErrorIs(t, <-reply, ErrNotHost)
}

func TestRoom_BidFlowWithEvents(t *testing.T) {
	f := newRoomFixture(t, 1)
	f.join(t, bidderOne, f.teams[0].ID)
	f.join(t, bidderTwo, f.teams[1].ID)
	require.NoError(t, f.open(t, hostID))

	opened := f.pub.typed(EventItemOpened)
	require.Len(t, opened, 1)
	var op ItemOpenedPayload
	require.NoError(t, json.Unmarshal(opened[0].Data, &op))
	require.Equal(t, int64(100), op.BasePrice)
	require.Equal(t, 30, op.WindowSec)

	res := f.bid(t, bidderOne, op.ItemID, 100)
	require.NoError(t, res.Err)
	require.Equal(t, uint64(1), res.Bid.Seq)

	res = f.bid(t, bidderTwo, op.ItemID, 95)
	require.ErrorIs(t, res.Err, ErrBelowIncrement)

	res = f.bid(t, bidderTwo, op.ItemID, 120)
	require.NoError(t, res.Err)
	require.Equal(t, uint64(2), res.Bid.Seq)

	accepted := f.pub.typed(EventBidAccepted)
	require.Len(t, accepted, 2)

	view := f.state(t)
	require.Equal(t, int64(130), view.MinNextBid)
	require.Equal(t, ClockRunning, view.ClockState)
	require.NotNil(t, view.Deadline)

	for _, tv := range view.Teams {
		switch tv.ID {
		case f.teams[0].ID:
			require.Zero(t, tv.Reserved, "outbid hold released")
		case f.teams[1].ID:
			require.Equal(t, int64(120), tv.Reserved)
		}
	}
}

func TestRoom_ExpiryBeatsLateBid(t *testing.T) {
	f := newRoomFixture(t, 1)
	f.join(t, bidderOne, f.teams[0].ID)
	require.NoError(t, f.open(t, hostID))
	itemID := f.state(t).Items[0].ID

	res := f.bid(t, bidderOne, itemID, 100)
	require.NoError(t, res.Err)

	// Expiry travels through the same inbox as bids; once the item is settled
	// a late bid sees a closed item instead of being silently dropped.
	f.fake.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		return len(f.pub.typed(EventItemSold)) == 1
	}, time.Second, 5*time.Millisecond)

	late := f.bid(t, bidderOne, itemID, 200)
	require.ErrorIs(t, late.Err, ErrAuctionClosed)

	sold := f.pub.typed(EventItemSold)
	var pay ItemSoldPayload
	require.NoError(t, json.Unmarshal(sold[0].Data, &pay))
	require.Equal(t, f.teams[0].ID, pay.TeamID)
	require.Equal(t, int64(100), pay.Amount)
}

func TestRoom_SnipeExtensionEvent(t *testing.T) {
	f := newRoomFixture(t, 1)
	f.join(t, bidderOne, f.teams[0].ID)
	require.NoError(t, f.open(t, hostID))
	itemID := f.state(t).Items[0].ID

	f.fake.Advance(27 * time.Second) // 3s remaining
	res := f.bid(t, bidderOne, itemID, 100)
	require.NoError(t, res.Err)

	exts := f.pub.typed(EventClockExtended)
	require.Len(t, exts, 1)
	var pay ClockExtendedPayload
	require.NoError(t, json.Unmarshal(exts[0].Data, &pay))
	require.Equal(t, int64(10000), pay.ExtendedByMs)
}

func TestRoom_FullAuctionToCompletion(t *testing.T) {
	f := newRoomFixture(t, 2)
	f.join(t, bidderOne, f.teams[0].ID)
	f.join(t, bidderTwo, f.teams[1].ID)

	// Item 1: sold via force close.
	require.NoError(t, f.open(t, hostID))
	item1 := f.state(t).Items[0].ID
	require.NoError(t, f.bid(t, bidderOne, item1, 150).Err)

	reply := make(chan error, 1)
	f.room.Inbox() <- ForceClose{ParticipantID: hostID, Reply: reply}
	require.NoError(t, <-reply)

	// Item 2: no bids, natural expiry.
	require.NoError(t, f.open(t, hostID))
	f.fake.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return f.state(t).Complete }, time.Second, 5*time.Millisecond)

	view := f.state(t)
	require.Equal(t, ItemSold, view.Items[0].Status)
	require.NotNil(t, view.Items[0].SoldTo)
	require.Equal(t, f.teams[0].ID, *view.Items[0].SoldTo)
	require.Equal(t, int64(150), view.Items[0].SoldFor)
	require.Equal(t, ItemUnsold, view.Items[1].Status)
	require.True(t, view.Items[1].ReAuction)

	for _, tv := range view.Teams {
		if tv.ID == f.teams[0].ID {
			require.Equal(t, int64(850), tv.Purse)
			require.Equal(t, []uuid.UUID{item1}, tv.Roster)
		} else {
			require.Equal(t, int64(1000), tv.Purse)
		}
		require.Zero(t, tv.Reserved)
	}

	done := f.pub.typed(EventRoomComplete)
	require.Len(t, done, 1)
	var pay RoomCompletePayload
	require.NoError(t, json.Unmarshal(done[0].Data, &pay))
	require.Equal(t, 1, pay.Sold)
	require.Equal(t, 1, pay.Unsold)

	require.ErrorIs(t, f.open(t, hostID), ErrRoomComplete)
}

func TestRoom_SnapshotPersistedOnClose(t *testing.T) {
	f := newRoomFixture(t, 1)
	f.join(t, bidderOne, f.teams[0].ID)
	require.NoError(t, f.open(t, hostID))
	itemID := f.state(t).Items[0].ID
	require.NoError(t, f.bid(t, bidderOne, itemID, 100).Err)
	f.fake.Advance(30 * time.Second)

	require.Eventually(t, func() bool { return f.sink.count() == 1 }, time.Second, 5*time.Millisecond)
	snap := f.sink.latest()
	require.Equal(t, f.cfg.ID, snap.RoomID)
	require.True(t, snap.Complete)
	require.Len(t, snap.Ledgers, 1)
	require.Len(t, snap.Ledgers[0].Bids, 1)
	require.NotNil(t, snap.Items[0].SoldTo)
}

func TestRoom_LeaveRemovesParticipant(t *testing.T) {
	f := newRoomFixture(t, 1)
	f.join(t, bidderOne, f.teams[0].ID)
	f.room.Inbox() <- Leave{ParticipantID: bidderOne}

	require.Eventually(t, func() bool { return f.state(t).Participants == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.open(t, hostID))
	itemID := f.state(t).Items[0].ID
	res := f.bid(t, bidderOne, itemID, 100)
	require.ErrorIs(t, res.Err, ErrNotParticipant)
}
