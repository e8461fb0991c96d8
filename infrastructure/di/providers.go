package di

import (
	"context"
	"fmt"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/application/services"
	domaincfg "github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/validators"
	"github.com/PRicaldone/atelier-sub003/domain/versioning"
	"github.com/PRicaldone/atelier-sub003/infrastructure/config"
	infraevents "github.com/PRicaldone/atelier-sub003/infrastructure/events"
	"github.com/PRicaldone/atelier-sub003/infrastructure/observability"
	"github.com/PRicaldone/atelier-sub003/infrastructure/persistence"
	dynamostore "github.com/PRicaldone/atelier-sub003/infrastructure/persistence/dynamodb"
	"github.com/PRicaldone/atelier-sub003/infrastructure/persistence/memory"
	redisstore "github.com/PRicaldone/atelier-sub003/infrastructure/persistence/redis"
	"github.com/PRicaldone/atelier-sub003/infrastructure/persistence/schema"
	"github.com/PRicaldone/atelier-sub003/infrastructure/persistence/writequeue"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProvideLogger creates a logger tuned to the environment
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zapCfg.Build()
}

// ProvideRulesWatcher creates the domain rules watcher when a rules
// file is configured. Without one the watcher is nil and the
// environment profile applies unchanged.
func ProvideRulesWatcher(cfg *config.Config, logger *zap.Logger) (*config.RulesWatcher, error) {
	if cfg.DomainRulesPath == "" {
		return nil, nil
	}
	return config.NewRulesWatcher(cfg.DomainRulesPath, cfg.Environment, logger)
}

// ProvideDomainConfig resolves the active domain rules
func ProvideDomainConfig(cfg *config.Config, watcher *config.RulesWatcher) *domaincfg.DomainConfig {
	if watcher != nil {
		return watcher.Current()
	}
	return domaincfg.LoadDomainConfig(cfg.Environment)
}

// ProvideSnapshotPolicy builds the snapshot write policy
func ProvideSnapshotPolicy(cfg *config.Config) versioning.SnapshotPolicy {
	return versioning.SnapshotPolicy{
		QuietPeriod:     cfg.SnapshotQuietPeriod,
		MaxPendingAge:   cfg.SnapshotMaxPendingAge,
		VerifyChecksums: cfg.SnapshotVerifyChecksums,
	}
}

// ProvideEvolution creates the schema migration registry
func ProvideEvolution(logger *zap.Logger) *schema.Evolution {
	return schema.DefaultEvolution(logger)
}

// ProvideCodec creates the snapshot codec
func ProvideCodec(evolution *schema.Evolution, policy versioning.SnapshotPolicy, logger *zap.Logger) ports.SnapshotCodec {
	return persistence.NewCodec(evolution, policy, logger)
}

// ProvideSnapshotStore creates the snapshot store selected by the
// configuration
func ProvideSnapshotStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.SnapshotStore, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		return memory.NewStore(), nil

	case config.StorageRedis:
		return redisstore.NewStore(cfg.RedisURL, logger)

	case config.StorageDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := awsdynamodb.NewFromConfig(awsCfg)
		return dynamostore.NewStore(client, cfg.DynamoDBTable, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ProvideCollector creates the metrics collector
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.MetricsNamespace)
}

// ProvideBus creates the in-process event bus
func ProvideBus(logger *zap.Logger) *infraevents.Bus {
	return infraevents.NewBus(logger)
}

// ProvideEventBus exposes the bus through its port
func ProvideEventBus(bus *infraevents.Bus) ports.EventBus {
	return bus
}

// ProvideEventPublisher narrows the event bus to its publishing side
func ProvideEventPublisher(eventBus ports.EventBus) ports.EventPublisher {
	return eventBus
}

// ProvideWriteQueueOptions builds the flush retry options
func ProvideWriteQueueOptions(cfg *config.Config) writequeue.Options {
	return writequeue.Options{
		MaxRetries:   cfg.FlushMaxRetries,
		RetryBackoff: cfg.FlushRetryBackoff,
		WriteTimeout: cfg.FlushWriteTimeout,
	}
}

// ProvideWriteQueue creates the debounced snapshot write queue
func ProvideWriteQueue(
	store ports.SnapshotStore,
	policy versioning.SnapshotPolicy,
	opts writequeue.Options,
	publisher ports.EventPublisher,
	collector *observability.Collector,
	logger *zap.Logger,
) *writequeue.Queue {
	return writequeue.NewQueue(store, policy, opts, publisher, collector, logger)
}

// ProvideWriteScheduler exposes the queue through its port
func ProvideWriteScheduler(queue *writequeue.Queue) ports.WriteScheduler {
	return queue
}

// ProvideFlowValidator creates the promotion flow validator
func ProvideFlowValidator() *validators.FlowValidator {
	return validators.NewFlowValidator()
}

// ProvideGraphStore creates the workspace graph store
func ProvideGraphStore(
	rules *domaincfg.DomainConfig,
	codec ports.SnapshotCodec,
	scheduler ports.WriteScheduler,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.GraphStore {
	return services.NewGraphStore(rules, codec, scheduler, publisher, logger)
}

// ProvideContainerStore creates the nested container store
func ProvideContainerStore(
	rules *domaincfg.DomainConfig,
	graphs *services.GraphStore,
	codec ports.SnapshotCodec,
	scheduler ports.WriteScheduler,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.ContainerStore {
	return services.NewContainerStore(rules, graphs, codec, scheduler, publisher, logger)
}

// ProvideConsistencyEngine creates the consistency engine
func ProvideConsistencyEngine(
	rules *domaincfg.DomainConfig,
	containers *services.ContainerStore,
	graphs *services.GraphStore,
	flow *validators.FlowValidator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.ConsistencyEngine {
	return services.NewConsistencyEngine(rules, containers, graphs, flow, publisher, logger)
}

// ProvidePromotionEngine creates the promotion engine
func ProvidePromotionEngine(
	rules *domaincfg.DomainConfig,
	containers *services.ContainerStore,
	graphs *services.GraphStore,
	flow *validators.FlowValidator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.PromotionEngine {
	return services.NewPromotionEngine(rules, containers, graphs, flow, publisher, logger)
}

// ProvideMetricsListener subscribes the metrics listener to the bus
func ProvideMetricsListener(
	collector *observability.Collector,
	containers *services.ContainerStore,
	graphs *services.GraphStore,
	bus *infraevents.Bus,
) (*observability.Listener, error) {
	listener := observability.NewListener(collector, containers, graphs)
	if err := bus.Subscribe(infraevents.WildcardEventType, listener); err != nil {
		return nil, fmt.Errorf("subscribe metrics listener: %w", err)
	}
	return listener, nil
}
