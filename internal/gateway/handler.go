// Package gateway carries bid submissions in and room events out over
// WebSocket. It trusts the participant/team binding supplied by the caller;
// credential validation happens upstream.
package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
	"github.com/SandeepCodez24/ipl-auction-server/internal/broadcast"
	"github.com/SandeepCodez24/ipl-auction-server/internal/hub"
)

// Config holds the WebSocket connection tuning knobs.
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     64,
		CheckOrigin:    func(r *http.Request) bool { return true },
	}
}

// Handler upgrades participant connections and bridges them to room actors.
type Handler struct {
	hub      *hub.Hub
	bc       *broadcast.Broadcaster
	upgrader websocket.Upgrader
	cfg      Config
}

func NewHandler(h *hub.Hub, bc *broadcast.Broadcaster, cfg Config) *Handler {
	return &Handler{
		hub: h,
		bc:  bc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		cfg: cfg,
	}
}

// ServeWS handles GET /ws?room_id=&participant_id=&team_id=&since=.
// team_id omitted joins as spectator; since resumes event delivery past an
// acknowledged watermark.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.URL.Query().Get("room_id"))
	if err != nil {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}
	teamID := uuid.Nil
	if s := r.URL.Query().Get("team_id"); s != "" {
		if teamID, err = uuid.Parse(s); err != nil {
			http.Error(w, "invalid team_id", http.StatusBadRequest)
			return
		}
	}
	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		if since, err = strconv.ParseUint(s, 10, 64); err != nil {
			http.Error(w, "invalid since watermark", http.StatusBadRequest)
			return
		}
	}

	room := h.hub.Get(roomID)
	if room == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	joinReply := make(chan auction.JoinResult, 1)
	room.Inbox() <- auction.Join{ParticipantID: participantID, TeamID: teamID, Reply: joinReply}
	joined := <-joinReply
	if joined.Err != nil {
		http.Error(w, joined.Err.Error(), http.StatusForbidden)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("websocket upgrade failed")
		room.Inbox() <- auction.Leave{ParticipantID: participantID}
		return
	}

	conn := &connection{
		ws:            ws,
		room:          room,
		bc:            h.bc,
		roomID:        roomID,
		participantID: participantID,
		cfg:           h.cfg,
		send:          make(chan []byte, h.cfg.SendBuffer),
		events:        h.bc.Subscribe(roomID, participantID),
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("participant_id", participantID).
		Msg("participant connected")

	go conn.writePump()
	conn.sendState(joined.View)
	if since > 0 || r.URL.Query().Get("since") != "" {
		conn.sendReplay(since)
	}
	conn.readPump()
}

type connection struct {
	ws            *websocket.Conn
	room          *auction.Room
	bc            *broadcast.Broadcaster
	roomID        uuid.UUID
	participantID string
	cfg           Config
	send          chan []byte
	events        <-chan auction.Event
}

func (c *connection) sendState(view auction.RoomView) {
	data, _ := json.Marshal(StateFrame{Type: "RoomState", View: view, Watermark: c.bc.Watermark(c.roomID)})
	c.send <- data
}

func (c *connection) sendReplay(since uint64) {
	for _, ev := range c.bc.Replay(c.roomID, since) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		c.send <- data
	}
}

// readPump runs on the handler goroutine and translates client frames into
// room commands. Rejections come back to this participant as targeted
// BidRejected events, so bid replies only need draining here.
func (c *connection) readPump() {
	defer func() {
		c.room.Inbox() <- auction.Leave{ParticipantID: c.participantID}
		c.bc.Unsubscribe(c.roomID, c.participantID)
		c.ws.Close()
		log.Info().
			Str("room_id", c.roomID.String()).
			Str("participant_id", c.participantID).
			Msg("participant disconnected")
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("participant_id", c.participantID).Msg("websocket read error")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		msg, err := ParseClientMessage(data)
		if err != nil {
			c.send <- errorFrame(err.Error())
			continue
		}

		switch msg.Type {
		case MsgPlaceBid:
			reply := make(chan auction.BidResult, 1)
			c.room.Inbox() <- auction.PlaceBid{
				ParticipantID: c.participantID,
				ItemID:        msg.ItemID,
				Amount:        msg.Amount,
				Reply:         reply,
			}
			<-reply
		case MsgOpenItem:
			reply := make(chan error, 1)
			c.room.Inbox() <- auction.OpenItem{ParticipantID: c.participantID, Reply: reply}
			if err := <-reply; err != nil {
				c.send <- errorFrame(err.Error())
			}
		case MsgForceClose:
			reply := make(chan error, 1)
			c.room.Inbox() <- auction.ForceClose{ParticipantID: c.participantID, Reply: reply}
			if err := <-reply; err != nil {
				c.send <- errorFrame(err.Error())
			}
		case MsgReplay:
			c.sendReplay(msg.Since)
		}
	}
}

// writePump owns all writes to the socket: direct frames, live events and
// keepalive pings, each under a write deadline.
func (c *connection) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case ev, ok := <-c.events:
			if !ok {
				// Unsubscribed or room closed.
				c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
