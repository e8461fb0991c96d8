package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/application/services"
	domaincfg "github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/aggregates"
	"github.com/PRicaldone/atelier-sub003/infrastructure/config"
	infraevents "github.com/PRicaldone/atelier-sub003/infrastructure/events"
	"github.com/PRicaldone/atelier-sub003/infrastructure/observability"
	"github.com/PRicaldone/atelier-sub003/infrastructure/persistence/writequeue"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	DomainRules  *domaincfg.DomainConfig
	RulesWatcher *config.RulesWatcher
	Logger       *zap.Logger

	Collector       *observability.Collector
	MetricsListener *observability.Listener
	Bus             *infraevents.Bus

	Store ports.SnapshotStore
	Codec ports.SnapshotCodec
	Queue *writequeue.Queue

	ContainerStore    *services.ContainerStore
	GraphStore        *services.GraphStore
	ConsistencyEngine *services.ConsistencyEngine
	PromotionEngine   *services.PromotionEngine
}

// Bootstrap loads the persisted snapshots into the in-memory stores and
// establishes the structural invariants: the general graph, the root
// container with its bound graph, and a legacy migration sweep. Called
// once before the server starts serving requests.
func (c *Container) Bootstrap(ctx context.Context) error {
	if err := c.restoreGraphs(ctx); err != nil {
		return err
	}
	if err := c.restoreCanvas(ctx); err != nil {
		return err
	}

	c.GraphStore.EnsureGeneralGraph(ctx)
	if _, err := c.ContainerStore.EnsureRoot(ctx, ""); err != nil {
		return fmt.Errorf("ensure root container: %w", err)
	}

	if c.DomainRules.EnableLegacyMigration {
		result, err := c.PromotionEngine.MigrateLegacy(ctx)
		if err != nil {
			return fmt.Errorf("legacy migration: %w", err)
		}
		if result.GraphsCreated > 0 || result.GraphsNormalized > 0 {
			c.Logger.Info("Legacy records migrated",
				zap.Int("graphsCreated", result.GraphsCreated),
				zap.Int("graphsNormalized", result.GraphsNormalized),
			)
		}
	}

	return nil
}

func (c *Container) restoreGraphs(ctx context.Context) error {
	payload, err := c.Store.Get(ctx, ports.KeyGraphsCollection)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load graphs snapshot: %w", err)
	}

	graphs, err := c.Codec.DecodeGraphs(payload)
	if err != nil {
		return fmt.Errorf("decode graphs snapshot: %w", err)
	}
	c.GraphStore.Restore(graphs)
	return nil
}

func (c *Container) restoreCanvas(ctx context.Context) error {
	payload, err := c.Store.Get(ctx, ports.KeyCanvasSnapshot)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load canvas snapshot: %w", err)
	}

	containers, err := c.Codec.DecodeCanvas(payload)
	if err != nil {
		return fmt.Errorf("decode canvas snapshot: %w", err)
	}

	// Navigation state is expendable: a session that fails to load
	// costs the user their place in the hierarchy, nothing more
	session := ports.SessionState{}
	sessionPayload, err := c.Store.Get(ctx, ports.KeyEngineSession)
	switch {
	case errors.Is(err, ports.ErrKeyNotFound):
	case err != nil:
		c.Logger.Warn("Failed to load session snapshot", zap.Error(err))
	default:
		if session, err = c.Codec.DecodeSession(sessionPayload); err != nil {
			c.Logger.Warn("Failed to decode session snapshot", zap.Error(err))
			session = ports.SessionState{}
		}
	}

	canvas, err := aggregates.RebuildCanvas(containers, session.ActivePath)
	if err != nil {
		return fmt.Errorf("rebuild canvas: %w", err)
	}
	c.ContainerStore.Restore(canvas)
	return nil
}

// WatchRules wires rule reloads into every service and starts the
// watcher. A nil watcher makes this a no-op.
func (c *Container) WatchRules() {
	if c.RulesWatcher == nil {
		return
	}

	c.RulesWatcher.OnChange(func(rules *domaincfg.DomainConfig) {
		c.ContainerStore.ReloadRules(rules)
		c.GraphStore.ReloadRules(rules)
		c.ConsistencyEngine.ReloadRules(rules)
		c.PromotionEngine.ReloadRules(rules)
	})
	c.RulesWatcher.Start()
}

// Cleanup drains pending work and releases resources. Safe to call
// after a partial startup.
func (c *Container) Cleanup(ctx context.Context) {
	if c.RulesWatcher != nil {
		c.RulesWatcher.Stop()
	}

	if c.Queue != nil {
		if err := c.Queue.Close(ctx); err != nil {
			c.Logger.Error("Failed to drain write queue", zap.Error(err))
		}
	}

	if c.Bus != nil {
		_ = c.Bus.Close()
	}

	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Error("Failed to close snapshot store", zap.Error(err))
		}
	}

	_ = c.Logger.Sync()
}
