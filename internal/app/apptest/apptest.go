// Package apptest wires an AppContext over in-memory SQLite, miniredis and
// the in-process broker for service tests.
package apptest

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/cache"
	"github.com/oggyb/buildermatch/internal/config"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/db/dbtest"
	"github.com/oggyb/buildermatch/internal/logger"
	"github.com/oggyb/buildermatch/internal/metrics"
	"github.com/oggyb/buildermatch/internal/notify"
)

// Env is one isolated set of backends. Each test gets its own.
type Env struct {
	App       *app.AppContext
	DB        *gorm.DB
	Redis     *miniredis.Miniredis
	Broker    *notify.MemoryBroker
	Registry  *prometheus.Registry
	Collector *metrics.Collector

	mu  sync.Mutex
	now time.Time
}

// Start is the pinned clock value every Env begins at.
var Start = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func New(t *testing.T) *Env {
	t.Helper()

	gdb := dbtest.Open(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Matching.SuperConnectsPerDay = 3
	cfg.Matching.CandidatePageSize = 20

	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	broker := notify.NewMemoryBroker()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	env := &Env{
		DB:        gdb,
		Redis:     mr,
		Broker:    broker,
		Registry:  reg,
		Collector: collector,
		now:       Start,
	}
	env.App = app.New(cfg, gdb, rc, broker, collector, logger.Discard())
	env.App.Now = env.Now
	return env
}

// Now returns the pinned clock.
func (e *Env) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Advance moves the pinned clock forward.
func (e *Env) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// Profiles inserts onboarded profiles; each next id is one minute newer.
func (e *Env) Profiles(t *testing.T, ids ...string) {
	t.Helper()
	for i, id := range ids {
		p := db.Profile{
			ID:          id,
			DisplayName: "builder " + id,
			OneLiner:    "shipping a side project",
			TechStack:   []string{"Go"},
			CreatedAt:   Start.Add(time.Duration(i) * time.Minute),
		}
		if err := e.DB.Create(&p).Error; err != nil {
			t.Fatalf("failed to seed profile %s: %v", id, err)
		}
	}
}

// Counter sums every series of the named metric in the Env registry.
func (e *Env) Counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := e.Registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
