package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/stagecache"
)

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	// Configure GORM logger
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate creates or updates the stage_cache table
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(&StageCacheEntry{})
}

// Get retrieves the cached stage result for a wallet
func (db *DB) Get(ctx context.Context, address, stage string) (*stagecache.Entry, error) {
	var row StageCacheEntry
	result := db.conn.WithContext(ctx).
		Where("address = ? AND stage = ?", address, stage).
		First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("get stage %s for %s: %w", stage, address, result.Error)
	}
	return &stagecache.Entry{Data: row.Data, UpdatedAt: time.UnixMilli(row.UpdatedTS)}, nil
}

// Put upserts a stage result; the last writer wins
func (db *DB) Put(ctx context.Context, address, stage string, entry stagecache.Entry) error {
	row := &StageCacheEntry{
		Address:   address,
		Stage:     stage,
		Data:      entry.Data,
		UpdatedTS: entry.UpdatedAt.UnixMilli(),
	}
	result := upsert(db.conn.WithContext(ctx), row)
	if result.Error != nil {
		return fmt.Errorf("put stage %s for %s: %w", stage, address, result.Error)
	}
	return nil
}

func upsert(tx *gorm.DB, row *StageCacheEntry) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}, {Name: "stage"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_ts"}),
	}).Create(row)
}

// PurgeOlderThan deletes entries not refreshed since cutoff
func (db *DB) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := db.conn.WithContext(ctx).
		Where("updated_ts < ?", cutoff.UnixMilli()).
		Delete(&StageCacheEntry{})
	return result.RowsAffected, result.Error
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
