package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/buildermatch/internal/cache"
	"github.com/oggyb/buildermatch/internal/config"
	"github.com/oggyb/buildermatch/internal/metrics"
	"github.com/oggyb/buildermatch/internal/notify"
)

// AppContext holds shared dependencies (DB, Redis, Broker, Metrics, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Broker     notify.Broker
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	// Now is the service clock. Tests pin it; production uses time.Now.
	Now func() time.Time
}

// New creates a new AppContext
func New(
	cfg *config.Config,
	db *gorm.DB,
	rdb *cache.RedisCache,
	broker notify.Broker,
	rec metrics.Recorder,
	logger *slog.Logger,
) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Broker:     broker,
		Metrics:    rec,
		Logger:     logger,
		Now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}
