package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rohits-web03/clipdrop/internal/models"
)

// MemoryLedger keeps records in process memory. Used when no DB_URL is set.
type MemoryLedger struct {
	mu    sync.RWMutex
	items map[string]models.ClipboardItem
	now   func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemory() *MemoryLedger {
	return &MemoryLedger{
		items: make(map[string]models.ClipboardItem),
		now:   time.Now,
	}
}

func (m *MemoryLedger) Commit(ctx context.Context, item models.ClipboardItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if prev, ok := m.items[item.ID]; ok {
		item.CreatedAt = prev.CreatedAt
	} else if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	m.items[item.ID] = item
	return nil
}

func (m *MemoryLedger) Get(ctx context.Context, id string) (models.ClipboardItem, error) {
	if err := ctx.Err(); err != nil {
		return models.ClipboardItem{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return models.ClipboardItem{}, ErrNotFound
	}
	return item, nil
}

func (m *MemoryLedger) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, item := range m.items {
		if item.Deleted || item.ExpiresAt.After(now) {
			continue
		}
		item.Deleted = true
		item.UpdatedAt = now.UTC()
		m.items[id] = item
		n++
	}
	return n, nil
}
