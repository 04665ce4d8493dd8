package session

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	platformerrors "voxd-server/internal/platform/errors"
)

// sessionRow is the GORM model backing SQLStore: one row per session,
// with the turn list stored as a JSON column rather than a joined
// table, matching Record's shape one-to-one.
type sessionRow struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Turns     datatypes.JSON
}

func (sessionRow) TableName() string { return "sessions" }

// SQLStore persists session history to a SQL database via GORM,
// defaulting to SQLite. It satisfies the same Round-trip contract as
// FileStore: Load is best-effort, Save is atomic per row via a
// transaction.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens (or creates) a SQLite database at dsn and migrates
// the sessions table.
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindFatal, "session.sql_store.open", "failed to open session database", err)
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindFatal, "session.sql_store.migrate", "failed to migrate sessions table", err)
	}
	return &SQLStore{db: db}, nil
}

// Load reads a session row. A missing row returns (nil, nil); a row
// whose Turns column fails to unmarshal is treated the same way,
// keeping Load best-effort.
func (s *SQLStore) Load(ctx context.Context, id string) (*Record, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.Wrap(platformerrors.KindTransient, "session.sql_store.load", "failed to query session row", err)
	}

	var turns []TurnRecord
	if err := sonic.Unmarshal([]byte(row.Turns), &turns); err != nil {
		return nil, nil
	}

	return &Record{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt, Turns: turns}, nil
}

// Save upserts the session row inside a transaction.
func (s *SQLStore) Save(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now()

	turnsJSON, err := sonic.Marshal(rec.Turns)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindPermanent, "session.sql_store.save", "failed to marshal turns", err)
	}

	row := sessionRow{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Turns:     datatypes.JSON(turnsJSON),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(&row).Error
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, "session.sql_store.save", "failed to save session row", err)
	}
	return nil
}
