//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/PRicaldone/atelier-sub003/infrastructure/config"
	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideRulesWatcher,
	ProvideDomainConfig,
	ProvideSnapshotPolicy,
	ProvideEvolution,
	ProvideCodec,
	ProvideSnapshotStore,
	ProvideCollector,
	ProvideBus,
	ProvideEventBus,
	ProvideEventPublisher,
	ProvideWriteQueueOptions,
	ProvideWriteQueue,
	ProvideWriteScheduler,
	ProvideFlowValidator,
	ProvideGraphStore,
	ProvideContainerStore,
	ProvideConsistencyEngine,
	ProvidePromotionEngine,
	ProvideMetricsListener,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
