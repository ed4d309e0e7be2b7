package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Cmd is a message into the room actor's inbox. Every mutation of room state
// travels through this single ordered queue: bids, host actions, clock expiry
// and connection changes are serialized, so bids on the same item are
// processed strictly in arrival order with no interleaved partial updates.
type Cmd interface{ isRoomCmd() }

type PlaceBid struct {
	ParticipantID string
	ItemID        uuid.UUID
	Amount        int64
	Reply         chan BidResult
}

type OpenItem struct {
	ParticipantID string
	Reply         chan error
}

type ForceClose struct {
	ParticipantID string
	Reply         chan error
}

type Join struct {
	ParticipantID string
	TeamID        uuid.UUID // uuid.Nil joins as spectator
	Reply         chan JoinResult
}

type Leave struct{ ParticipantID string }

type GetState struct{ Reply chan RoomView }

type Shutdown struct{}

type clockExpired struct{ gen uint64 }

func (PlaceBid) isRoomCmd()     {}
func (OpenItem) isRoomCmd()     {}
func (ForceClose) isRoomCmd()   {}
func (Join) isRoomCmd()         {}
func (Leave) isRoomCmd()        {}
func (GetState) isRoomCmd()     {}
func (Shutdown) isRoomCmd()     {}
func (clockExpired) isRoomCmd() {}

// BidResult is the synchronous response to a PlaceBid. Err carries the
// rejection; accepted bids additionally fan out as BidAccepted events.
type BidResult struct {
	Bid Bid
	Err error
}

type JoinResult struct {
	View RoomView
	Err  error
}

// TeamView is a team plus its provisional hold.
type TeamView struct {
	TeamSnapshot
	Reserved int64 `json:"reserved"`
}

// RoomView is the read model handed to joining participants and the HTTP API.
type RoomView struct {
	RoomID       uuid.UUID      `json:"room_id"`
	Name         string         `json:"name"`
	HostID       string         `json:"host_id"`
	Items        []ItemSnapshot `json:"items"`
	CurrentIndex int            `json:"current_index"`
	Teams        []TeamView     `json:"teams"`
	Participants int            `json:"participants"`
	Complete     bool           `json:"complete"`
	ClockState   ClockState     `json:"clock_state"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	MinNextBid   int64          `json:"min_next_bid,omitempty"`
}

// Room is the single-writer actor owning one auction room: its machine,
// purse book and participant registry. One goroutine per room; the current
// item's ledger and clock are only touched from that goroutine.
type Room struct {
	id     uuid.UUID
	name   string
	hostID string
	rules  Rules

	inbox        chan Cmd
	machine      *Machine
	purse        *PurseBook
	pub          Publisher
	sink         SnapshotSink
	clk          clockwork.Clock
	participants map[string]uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoom(parent context.Context, cfg RoomConfig, clk clockwork.Clock, pub Publisher, sink SnapshotSink) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:           cfg.ID,
		name:         cfg.Name,
		hostID:       cfg.HostID,
		rules:        cfg.Rules,
		inbox:        make(chan Cmd, 64),
		purse:        NewPurseBook(cfg.Rules, cfg.Teams),
		pub:          pub,
		sink:         sink,
		clk:          clk,
		participants: make(map[string]uuid.UUID),
		ctx:          ctx,
		cancel:       cancel,
	}
	r.machine = NewMachine(cfg.Items, r.purse, cfg.Rules, clk, r.notifyExpiry)
	go r.loop()
	return r
}

func (r *Room) ID() uuid.UUID     { return r.id }
func (r *Room) Inbox() chan<- Cmd { return r.inbox }

// notifyExpiry runs on the timer goroutine. The expiry enters the same queue
// as bids; whichever the actor dequeues first wins, which removes the
// expiry-vs-late-bid race instead of special-casing it.
func (r *Room) notifyExpiry(gen uint64) {
	select {
	case r.inbox <- clockExpired{gen: gen}:
	case <-r.ctx.Done():
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.machine.Clock().Cancel()
			return
		case m := <-r.inbox:
			switch cmd := m.(type) {
			case Join:
				cmd.Reply <- r.handleJoin(cmd)
			case Leave:
				delete(r.participants, cmd.ParticipantID)
			case PlaceBid:
				cmd.Reply <- r.handleBid(cmd)
			case OpenItem:
				cmd.Reply <- r.handleOpen(cmd)
			case ForceClose:
				cmd.Reply <- r.handleForceClose(cmd)
			case clockExpired:
				if res := r.machine.Expire(cmd.gen); res != nil {
					r.finishItem(res)
				}
			case GetState:
				cmd.Reply <- r.view()
			case Shutdown:
				r.machine.Clock().Cancel()
				r.cancel()
				return
			}
		}
	}
}

func (r *Room) handleJoin(cmd Join) JoinResult {
	if cmd.TeamID != uuid.Nil {
		if _, ok := r.purse.Team(cmd.TeamID); !ok {
			return JoinResult{Err: ErrUnknownTeam}
		}
	}
	r.participants[cmd.ParticipantID] = cmd.TeamID
	return JoinResult{View: r.view()}
}

func (r *Room) handleBid(cmd PlaceBid) BidResult {
	teamID, joined := r.participants[cmd.ParticipantID]
	var err error
	switch {
	case !joined:
		err = ErrNotParticipant
	case teamID == uuid.Nil:
		err = ErrSpectator
	}
	if err == nil {
		var bid Bid
		var ext time.Duration
		bid, ext, err = r.machine.SubmitBid(teamID, cmd.ItemID, cmd.Amount)
		if err == nil {
			log.Debug().
				Str("room_id", r.id.String()).
				Str("team_id", teamID.String()).
				Int64("amount", bid.Amount).
				Uint64("bid_seq", bid.Seq).
				Msg("bid accepted")
			r.pub.Publish(NewEvent(r.id, EventBidAccepted, r.clk.Now(), BidAcceptedPayload{
				ItemID:   bid.ItemID,
				TeamID:   bid.TeamID,
				Amount:   bid.Amount,
				BidSeq:   bid.Seq,
				PlacedAt: bid.PlacedAt,
			}))
			if ext > 0 {
				r.pub.Publish(NewEvent(r.id, EventClockExtended, r.clk.Now(), ClockExtendedPayload{
					ItemID:       bid.ItemID,
					ExtendedByMs: ext.Milliseconds(),
					Deadline:     r.machine.Clock().Deadline(),
				}))
			}
			return BidResult{Bid: bid}
		}
	}

	if IsRejection(err) {
		log.Debug().
			Str("room_id", r.id.String()).
			Str("participant_id", cmd.ParticipantID).
			Int64("amount", cmd.Amount).
			Str("reason", ReasonOf(err)).
			Msg("bid rejected")
	} else {
		log.Error().
			Err(err).
			Str("room_id", r.id.String()).
			Str("participant_id", cmd.ParticipantID).
			Msg("bid failed")
	}

	// Every rejection is reported to the submitter: synchronously via the
	// reply and as a targeted event for transports that only watch the stream.
	r.pub.PublishTo(cmd.ParticipantID, NewEvent(r.id, EventBidRejected, r.clk.Now(), BidRejectedPayload{
		ItemID: cmd.ItemID,
		TeamID: teamID,
		Amount: cmd.Amount,
		Reason: ReasonOf(err),
		Detail: err.Error(),
	}))
	return BidResult{Err: err}
}

func (r *Room) handleOpen(cmd OpenItem) error {
	if cmd.ParticipantID != r.hostID {
		return ErrNotHost
	}
	item, err := r.machine.OpenCurrent()
	if err != nil {
		return err
	}
	log.Info().
		Str("room_id", r.id.String()).
		Str("item_id", item.ID.String()).
		Str("item", item.Name).
		Msg("item opened")
	r.pub.Publish(NewEvent(r.id, EventItemOpened, r.clk.Now(), ItemOpenedPayload{
		ItemID:    item.ID,
		Name:      item.Name,
		BasePrice: item.BasePrice,
		Deadline:  r.machine.Clock().Deadline(),
		WindowSec: int(r.rules.BidWindow.Seconds()),
	}))
	return nil
}

func (r *Room) handleForceClose(cmd ForceClose) error {
	if cmd.ParticipantID != r.hostID {
		return ErrNotHost
	}
	res, err := r.machine.ForceClose()
	if err != nil {
		return err
	}
	r.finishItem(res)
	return nil
}

// finishItem publishes the resolution, surfaces integrity violations to the
// host and hands a snapshot to the sink. The transition has already
// committed; fan-out and persistence are fire-and-forget after it.
func (r *Room) finishItem(res *Resolution) {
	if res.Integrity != nil {
		log.Error().
			Str("room_id", r.id.String()).
			Str("item_id", res.Item.ID.String()).
			Str("detail", res.Integrity.Detail).
			Msg("integrity violation: item degraded to unsold")
		r.pub.PublishTo(r.hostID, NewEvent(r.id, EventIntegrity, r.clk.Now(), IntegrityAlertPayload{
			ItemID: res.Item.ID,
			Detail: res.Integrity.Detail,
		}))
	}
	if res.Winning != nil {
		log.Info().
			Str("room_id", r.id.String()).
			Str("item_id", res.Item.ID.String()).
			Str("team_id", res.Winning.TeamID.String()).
			Int64("amount", res.Winning.Amount).
			Msg("item sold")
		r.pub.Publish(NewEvent(r.id, EventItemSold, r.clk.Now(), ItemSoldPayload{
			ItemID: res.Item.ID,
			TeamID: res.Winning.TeamID,
			Amount: res.Winning.Amount,
			BidSeq: res.Winning.Seq,
		}))
	} else {
		log.Info().
			Str("room_id", r.id.String()).
			Str("item_id", res.Item.ID.String()).
			Msg("item unsold")
		r.pub.Publish(NewEvent(r.id, EventItemUnsold, r.clk.Now(), ItemUnsoldPayload{
			ItemID:    res.Item.ID,
			ReAuction: res.Item.ReAuction,
		}))
	}
	if res.RoomComplete {
		log.Info().Str("room_id", r.id.String()).Msg("room complete")
		r.pub.Publish(NewEvent(r.id, EventRoomComplete, r.clk.Now(), RoomCompletePayload{
			Sold:   r.machine.SoldCount(),
			Unsold: r.machine.UnsoldCount(),
		}))
	}
	r.persistSnapshot()
}

// persistSnapshot copies state on the actor goroutine and writes it off it:
// no external I/O happens inside the single-writer critical section.
func (r *Room) persistSnapshot() {
	if r.sink == nil {
		return
	}
	snap := r.buildSnapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.sink.SaveSnapshot(ctx, snap); err != nil {
			log.Error().Err(err).Str("room_id", r.id.String()).Msg("failed to persist room snapshot")
		}
	}()
}

func (r *Room) buildSnapshot() *RoomSnapshot {
	items := r.machine.Items()
	snap := &RoomSnapshot{
		RoomID:   r.id,
		Name:     r.name,
		TakenAt:  r.clk.Now(),
		Complete: r.machine.Complete(),
		Items:    make([]ItemSnapshot, len(items)),
		Teams:    make([]TeamSnapshot, 0, len(r.purse.teams)),
		Ledgers:  r.machine.Archives(),
	}
	for i, it := range items {
		snap.Items[i] = itemSnapshot(it)
	}
	for _, t := range r.purse.Teams() {
		snap.Teams = append(snap.Teams, TeamSnapshot{ID: t.ID, Name: t.Name, Purse: t.Purse, Roster: t.Roster})
	}
	return snap
}

func (r *Room) view() RoomView {
	items := r.machine.Items()
	v := RoomView{
		RoomID:       r.id,
		Name:         r.name,
		HostID:       r.hostID,
		Items:        make([]ItemSnapshot, len(items)),
		CurrentIndex: r.machine.current,
		Participants: len(r.participants),
		Complete:     r.machine.Complete(),
		ClockState:   r.machine.Clock().State(),
	}
	for i, it := range items {
		v.Items[i] = itemSnapshot(it)
	}
	for _, t := range r.purse.Teams() {
		v.Teams = append(v.Teams, TeamView{
			TeamSnapshot: TeamSnapshot{ID: t.ID, Name: t.Name, Purse: t.Purse, Roster: t.Roster},
			Reserved:     r.purse.Reserved(t.ID),
		})
	}
	if v.ClockState == ClockRunning {
		d := r.machine.Clock().Deadline()
		v.Deadline = &d
	}
	v.MinNextBid = r.machine.MinNextBid()
	return v
}

func itemSnapshot(it *AuctionItem) ItemSnapshot {
	s := ItemSnapshot{
		ID:        it.ID,
		Name:      it.Name,
		BasePrice: it.BasePrice,
		Status:    it.Status,
		ReAuction: it.ReAuction,
	}
	if it.Status == ItemSold {
		team := it.HighestTeam
		s.SoldTo = &team
		s.SoldFor = it.HighestBid
	}
	return s
}
