// Package httpapi exposes room setup and read-only state over HTTP. The
// realtime path lives in the gateway package.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SandeepCodez24/ipl-auction-server/internal/analytics"
	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
	"github.com/SandeepCodez24/ipl-auction-server/internal/broadcast"
	"github.com/SandeepCodez24/ipl-auction-server/internal/gateway"
	"github.com/SandeepCodez24/ipl-auction-server/internal/hub"
)

type API struct {
	hub   *hub.Hub
	bc    *broadcast.Broadcaster
	ws    *gateway.Handler
	stats *analytics.Consumer // may be nil when NATS is disabled
	rules auction.Rules
}

func New(h *hub.Hub, bc *broadcast.Broadcaster, ws *gateway.Handler, stats *analytics.Consumer, rules auction.Rules) *API {
	return &API{hub: h, bc: bc, ws: ws, stats: stats, rules: rules}
}

func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("POST /rooms", a.handleCreateRoom)
	mux.HandleFunc("GET /rooms/{id}/state", a.handleRoomState)
	mux.HandleFunc("GET /rooms/{id}/events", a.handleRoomEvents)
	mux.HandleFunc("GET /rooms/{id}/stats", a.handleRoomStats)
	mux.HandleFunc("GET /ws", a.ws.ServeWS)
	return mux
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// CreateRoomRequest seeds a new room. Team and item ids are generated when
// omitted; the participant/team binding for bidders is established at join.
type CreateRoomRequest struct {
	Name   string `json:"name"`
	HostID string `json:"host_id"`
	Teams  []struct {
		ID   uuid.UUID `json:"id,omitempty"`
		Name string    `json:"name"`
	} `json:"teams"`
	Items []struct {
		ID        uuid.UUID `json:"id,omitempty"`
		Name      string    `json:"name"`
		BasePrice int64     `json:"base_price"`
	} `json:"items"`
}

type CreateRoomResponse struct {
	RoomID uuid.UUID        `json:"room_id"`
	View   auction.RoomView `json:"view"`
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.HostID == "" || len(req.Teams) == 0 || len(req.Items) == 0 {
		http.Error(w, "host_id, teams and items are required", http.StatusBadRequest)
		return
	}

	cfg := auction.RoomConfig{
		ID:     uuid.New(),
		Name:   req.Name,
		HostID: req.HostID,
		Rules:  a.rules,
	}
	for _, t := range req.Teams {
		id := t.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		cfg.Teams = append(cfg.Teams, auction.TeamSeed{ID: id, Name: t.Name})
	}
	for _, it := range req.Items {
		id := it.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		base := it.BasePrice
		if base <= 0 {
			base = a.rules.BasePriceFloor
		}
		cfg.Items = append(cfg.Items, auction.ItemSeed{ID: id, Name: it.Name, BasePrice: base})
	}

	room := a.hub.Create(cfg)
	view := a.roomView(room)
	writeJSON(w, http.StatusCreated, CreateRoomResponse{RoomID: cfg.ID, View: view})
}

func (a *API) handleRoomState(w http.ResponseWriter, r *http.Request) {
	room, ok := a.roomFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.roomView(room))
}

func (a *API) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		if since, err = strconv.ParseUint(s, 10, 64); err != nil {
			http.Error(w, "invalid since watermark", http.StatusBadRequest)
			return
		}
	}
	events := a.bc.Replay(roomID, since)
	if events == nil {
		events = []auction.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) handleRoomStats(w http.ResponseWriter, r *http.Request) {
	if a.stats == nil {
		http.Error(w, "analytics disabled", http.StatusNotFound)
		return
	}
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	stats, ok := a.stats.Room(roomID)
	if !ok {
		http.Error(w, "no stats for room", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) roomFromPath(w http.ResponseWriter, r *http.Request) (*auction.Room, bool) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return nil, false
	}
	room := a.hub.Get(roomID)
	if room == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	}
	return room, true
}

func (a *API) roomView(room *auction.Room) auction.RoomView {
	reply := make(chan auction.RoomView, 1)
	room.Inbox() <- auction.GetState{Reply: reply}
	return <-reply
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
