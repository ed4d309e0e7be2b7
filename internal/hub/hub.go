// Package hub owns the registry of live room actors.
package hub

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

type Msg interface{ isHubMsg() }

type CreateRoom struct {
	Cfg   auction.RoomConfig
	Reply chan *auction.Room
}

type GetRoom struct {
	ID    uuid.UUID
	Reply chan *auction.Room
}

type RemoveRoom struct{ ID uuid.UUID }

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Deps are the collaborators injected into every room the hub creates.
type Deps struct {
	Clock     clockwork.Clock
	Publisher auction.Publisher
	Sink      auction.SnapshotSink
}

// Hub is an actor managing the room map. Creation and lookup funnel through
// its inbox, so two concurrent creates for the same id cannot both win.
type Hub struct {
	inbox  chan Msg
	rooms  map[uuid.UUID]*auction.Room
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, deps Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan Msg, 64),
		rooms:  make(map[uuid.UUID]*auction.Room),
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Create is a convenience wrapper around the CreateRoom message.
func (h *Hub) Create(cfg auction.RoomConfig) *auction.Room {
	reply := make(chan *auction.Room, 1)
	h.inbox <- CreateRoom{Cfg: cfg, Reply: reply}
	return <-reply
}

// Get returns the live room actor, or nil when the id is unknown.
func (h *Hub) Get(id uuid.UUID) *auction.Room {
	reply := make(chan *auction.Room, 1)
	h.inbox <- GetRoom{ID: id, Reply: reply}
	return <-reply
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return
		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.Cfg.ID]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := auction.NewRoom(h.ctx, msg.Cfg, h.deps.Clock, h.deps.Publisher, h.deps.Sink)
				h.rooms[msg.Cfg.ID] = rm
				log.Info().Str("room_id", msg.Cfg.ID.String()).Str("name", msg.Cfg.Name).Msg("room created")
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case RemoveRoom:
				if rm := h.rooms[msg.ID]; rm != nil {
					rm.Inbox() <- auction.Shutdown{}
					delete(h.rooms, msg.ID)
				}

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, rm := range h.rooms {
		rm.Inbox() <- auction.Shutdown{}
		delete(h.rooms, id)
	}
}
