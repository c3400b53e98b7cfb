// Package testutil provides an isolated, migrated database for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/events"
	"github.com/Additional-Code/loom/internal/migration"
	"github.com/Additional-Code/loom/internal/repository/history"
	"github.com/Additional-Code/loom/internal/service/transition"
)

// Actor is the identity used by tests for mutating calls.
const Actor = "tester@loom.test"

var dbSeq atomic.Int64

// Config returns a configuration suitable for tests: sqlite, no cache, no bus.
func Config(t *testing.T) config.Config {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	return config.Config{
		Database: config.Database{
			Driver:       "sqlite",
			WriterDSN:    dsn,
			ReaderDSN:    dsn,
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Cache:     config.Cache{Driver: "noop"},
		Messaging: config.Messaging{Driver: "noop", Kafka: config.Kafka{Topic: "loom.test.events"}},
		Storage:   config.Storage{Driver: "local", LocalDir: t.TempDir()},
		Dashboard: config.Dashboard{RecentActivityLimit: 10, SampleLimit: 50},
		Realtime:  config.Realtime{Enabled: true, SendBuffer: 16},
	}
}

// NewDB opens an in-memory database with all migrations applied. A single
// pooled connection keeps the memory database alive for the test and
// serialises transactions.
func NewDB(t *testing.T) (*database.Connections, config.Config) {
	t.Helper()
	cfg := Config(t)

	conns, err := database.Open(cfg.Database)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = conns.Close() })

	mig, err := migration.New(cfg, conns, zap.NewNop())
	if err != nil {
		t.Fatalf("build migrator: %v", err)
	}
	if err := mig.Up(context.Background()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return conns, cfg
}

// Engine builds a transition engine over conns.
func Engine(t *testing.T, conns *database.Connections) *transition.Engine {
	t.Helper()
	engine, err := transition.NewEngine(transition.Params{
		Conns:   conns,
		History: history.NewRepository(conns),
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("build transition engine: %v", err)
	}
	return engine
}

// Dispatcher builds an event dispatcher over store with the bus disabled.
func Dispatcher(store cache.Store) *events.Dispatcher {
	return events.NewDispatcher(events.Params{
		Cache:  store,
		Bus:    nil,
		Logger: zap.NewNop(),
	})
}
