package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// UserAccount is the persisted prepaid account row. Balance is stored in
// minutes and may go negative when a session overruns the terminal's local
// countdown.
type UserAccount struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Password  string `gorm:"not null"                              json:"password"`
	Balance   int    `gorm:"not null;default:0"                    json:"balance"`
	Tier      string `gorm:"type:varchar(32);not null;default:'Normal'" json:"tier"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionRecord is one append-only session log row, written exactly once per
// settled session.
type SessionRecord struct {
	ID              uint      `gorm:"primaryKey"`
	ClientIP        string    `gorm:"type:varchar(64)" json:"client_ip"`
	Username        string    `gorm:"index;not null"   json:"username"`
	StartTime       time.Time `gorm:"not null"         json:"start_time"`
	DurationMinutes int       `gorm:"not null"         json:"duration_minutes"`
	Tier            string    `gorm:"type:varchar(32)" json:"tier"`
	CreatedAt       time.Time
}

// Open initialises the SQLite database at path and migrates the ledger
// tables. The parent directory is created if needed.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserAccount{}, &SessionRecord{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying sql.DB handle.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
