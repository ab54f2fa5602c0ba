package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/buildermatch/internal/config"
)

// Options tune Open. The zero value is silent SQL logging.
type Options struct {
	LogSQL bool
	// MaxOpenConns is forced to 1 for sqlite in-memory databases by callers.
	MaxOpenConns int
}

// Open connects through the given dialector, migrates the schema and returns the handle.
//
// TranslateError is on so unique violations surface as gorm.ErrDuplicatedKey
// on both MySQL and SQLite.
func Open(dialector gorm.Dialector, opts Options) (*gorm.DB, error) {
	level := logger.Silent
	if opts.LogSQL {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(level),
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate keeps the schema in sync with the models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// NewDB initializes the database connection selected by cfg.DB.Driver.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DB.Driver {
	case "sqlite":
		return Open(sqlite.Open(cfg.DB.SQLitePath), Options{LogSQL: cfg.IsDevelopment(), MaxOpenConns: 1})
	case "mysql", "":
		return Open(mysql.Open(cfg.MySQLDSN()), Options{LogSQL: cfg.IsDevelopment()})
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}
}
