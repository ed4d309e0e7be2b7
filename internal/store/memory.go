package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
)

// Memory keeps snapshots in-process. Used in tests and when no database is
// configured.
type Memory struct {
	mu    sync.RWMutex
	snaps map[uuid.UUID][]*auction.RoomSnapshot
}

func NewMemory() *Memory {
	return &Memory{snaps: make(map[uuid.UUID][]*auction.RoomSnapshot)}
}

func (m *Memory) SaveSnapshot(_ context.Context, snap *auction.RoomSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.RoomID] = append(m.snaps[snap.RoomID], snap)
	return nil
}

// Latest returns the most recent snapshot for a room, nil when none exists.
func (m *Memory) Latest(roomID uuid.UUID) *auction.RoomSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.snaps[roomID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// Count reports how many snapshots were taken for a room.
func (m *Memory) Count(roomID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps[roomID])
}
