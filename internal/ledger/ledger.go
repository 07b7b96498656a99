// Package ledger records metadata about created clipboard items. It is the
// service's own view of what was stored; bytes live in the blob store.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rohits-web03/clipdrop/internal/models"
)

var ErrNotFound = errors.New("ledger: record not found")

type Ledger interface {
	// Commit inserts or replaces the record keyed by item.ID.
	Commit(ctx context.Context, item models.ClipboardItem) error
	// Get returns the record for id, including pruned ones (Deleted=true).
	Get(ctx context.Context, id string) (models.ClipboardItem, error)
	// PruneExpired flags every live record whose expiry is at or before now
	// and returns how many were flagged.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}
