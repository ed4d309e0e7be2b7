// Package analytics mirrors the room event stream onto NATS and aggregates
// read-only statistics from it. Consumers here never mutate core state.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

// SubjectPrefix is the root of the analytics subject space; events publish to
// <prefix>.<room_id>.<event_type>.
const SubjectPrefix = "auction.events"

// NATSMirror implements broadcast.Mirror by publishing every sequenced room
// event to NATS. Mirroring is best-effort: the state transition has already
// committed and broadcast to participants before the mirror sees the event.
type NATSMirror struct {
	nc *nats.Conn
}

func NewNATSMirror(url string) (*NATSMirror, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSMirror{nc: nc}, nil
}

func (m *NATSMirror) Mirror(ev auction.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, ev.RoomID, ev.Type)
	if err := m.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to mirror event")
	}
}

// Conn exposes the underlying connection so consumers can share it.
func (m *NATSMirror) Conn() *nats.Conn { return m.nc }

func (m *NATSMirror) Close() {
	m.nc.Close()
}
