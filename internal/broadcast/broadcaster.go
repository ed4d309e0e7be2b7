// Package broadcast fans room events out to connected participants and keeps
// the per-room replay log that backs catch-up after reconnect.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

// Mirror receives a copy of every sequenced room event, e.g. for the
// analytics stream. Mirroring is best-effort and never blocks publishing.
type Mirror interface {
	Mirror(ev auction.Event)
}

type subscriber struct {
	participantID string
	ch            chan auction.Event
}

// stream is the per-room fan-out state: one monotonic sequence counter
// (distinct from per-item bid sequence numbers), the ordered event log, and
// the live subscriber set.
type stream struct {
	seq  uint64
	log  []auction.Event
	subs map[string]*subscriber
}

// Broadcaster implements auction.Publisher. Events are totally ordered per
// room; delivery to a participant is at-least-once — a subscriber that falls
// behind loses its live channel and recovers the gap through Replay, so
// consumers de-duplicate by sequence number.
type Broadcaster struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]*stream
	mirror Mirror
	buffer int
}

func New(mirror Mirror) *Broadcaster {
	return &Broadcaster{
		rooms:  make(map[uuid.UUID]*stream),
		mirror: mirror,
		buffer: 64,
	}
}

func (b *Broadcaster) room(id uuid.UUID) *stream {
	st, ok := b.rooms[id]
	if !ok {
		st = &stream{subs: make(map[string]*subscriber)}
		b.rooms[id] = st
	}
	return st
}

// Publish assigns the next room sequence number, appends the event to the
// replay log and fans it out. The transition that produced the event has
// already committed; a slow or dead subscriber never holds it up.
func (b *Broadcaster) Publish(ev auction.Event) {
	b.mu.Lock()
	st := b.room(ev.RoomID)
	st.seq++
	ev.Seq = st.seq
	st.log = append(st.log, ev)
	// Sends stay under the lock so a concurrent Unsubscribe cannot close a
	// channel mid-send; they are non-blocking, so nothing stalls here.
	for _, s := range st.subs {
		select {
		case s.ch <- ev:
		default:
			// Subscriber buffer full; it catches up via Replay on reconnect.
			log.Warn().
				Str("room_id", ev.RoomID.String()).
				Str("participant_id", s.participantID).
				Uint64("seq", ev.Seq).
				Msg("subscriber lagging, dropping live event")
		}
	}
	b.mu.Unlock()

	if b.mirror != nil {
		b.mirror.Mirror(ev)
	}
}

// PublishTo delivers a targeted event (rejections, admin alerts) to a single
// participant. Targeted events carry no room sequence and are not replayable.
func (b *Broadcaster) PublishTo(participantID string, ev auction.Event) {
	// Same rule as Publish: the send stays under the lock so a concurrent
	// Unsubscribe cannot close the channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.rooms[ev.RoomID]
	if !ok {
		return
	}
	sub, ok := st.subs[participantID]
	if !ok {
		return
	}
	select {
	case sub.ch <- ev:
	default:
		log.Warn().
			Str("room_id", ev.RoomID.String()).
			Str("participant_id", participantID).
			Msg("subscriber lagging, dropping targeted event")
	}
}

// Subscribe registers a participant's live channel for a room. A second
// subscription for the same participant replaces the first.
func (b *Broadcaster) Subscribe(roomID uuid.UUID, participantID string) <-chan auction.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.room(roomID)
	if old, ok := st.subs[participantID]; ok {
		close(old.ch)
	}
	sub := &subscriber{participantID: participantID, ch: make(chan auction.Event, b.buffer)}
	st.subs[participantID] = sub
	return sub.ch
}

func (b *Broadcaster) Unsubscribe(roomID uuid.UUID, participantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.rooms[roomID]
	if !ok {
		return
	}
	if sub, ok := st.subs[participantID]; ok {
		delete(st.subs, participantID)
		close(sub.ch)
	}
}

// Replay returns every sequenced event with Seq > since, in order. The log
// covers the whole room session, so a watermark of 0 replays everything.
func (b *Broadcaster) Replay(roomID uuid.UUID, since uint64) []auction.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.rooms[roomID]
	if !ok {
		return nil
	}
	// Seq is assigned 1..n in append order, so the slice index is seq-1.
	if since >= uint64(len(st.log)) {
		return nil
	}
	return append([]auction.Event(nil), st.log[since:]...)
}

// Watermark is the highest sequence number published for a room.
func (b *Broadcaster) Watermark(roomID uuid.UUID) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if st, ok := b.rooms[roomID]; ok {
		return st.seq
	}
	return 0
}

// CloseRoom drops a room's stream and closes every live channel.
func (b *Broadcaster) CloseRoom(roomID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.rooms[roomID]
	if !ok {
		return
	}
	for _, sub := range st.subs {
		close(sub.ch)
	}
	delete(b.rooms, roomID)
}
