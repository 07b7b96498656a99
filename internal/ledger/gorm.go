package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rohits-web03/clipdrop/internal/models"
)

const sqlitePrefix = "sqlite:"

// GormLedger stores records in postgres, or sqlite for single-node setups.
type GormLedger struct {
	db *gorm.DB
}

var _ Ledger = (*GormLedger)(nil)

// Open connects to dsn and migrates the clipboard table. A dsn of the form
// "sqlite:<path>" (or "sqlite::memory:") selects sqlite, anything else is
// handed to the postgres driver.
func Open(dsn string, logger *slog.Logger) (*GormLedger, error) {
	dialector, driver := postgres.Open(dsn), "postgres"
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		if path == "" {
			return nil, errors.New("sqlite dsn must include a path")
		}
		dialector, driver = sqlite.Open(path), "sqlite"
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		// one writer; also keeps ":memory:" on a single connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	l, err := NewGorm(db)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to database", "driver", driver)
	return l, nil
}

// NewGorm wraps an existing connection and runs migrations.
func NewGorm(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&models.ClipboardItem{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &GormLedger{db: db}, nil
}

func (g *GormLedger) Commit(ctx context.Context, item models.ClipboardItem) error {
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "filename", "content_type", "size", "chunked", "chunk_count", "owner", "checksum", "expires_at", "updated_at", "deleted"}),
		}).
		Create(&item).Error
	if err != nil {
		return fmt.Errorf("commit %s: %w", item.ID, err)
	}
	return nil
}

func (g *GormLedger) Get(ctx context.Context, id string) (models.ClipboardItem, error) {
	var item models.ClipboardItem
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ClipboardItem{}, ErrNotFound
	}
	if err != nil {
		return models.ClipboardItem{}, fmt.Errorf("get %s: %w", id, err)
	}
	return item, nil
}

func (g *GormLedger) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := g.db.WithContext(ctx).
		Model(&models.ClipboardItem{}).
		Where("deleted = ? AND expires_at <= ?", false, now).
		Updates(map[string]any{"deleted": true, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("prune expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close releases the underlying pool.
func (g *GormLedger) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
