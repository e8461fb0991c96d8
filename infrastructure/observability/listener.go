package observability

import (
	"context"
	"strings"

	"github.com/PRicaldone/atelier-sub003/domain/events"
)

// Counter reports how many entities a store holds
type Counter interface {
	Count(ctx context.Context) int
}

// Listener feeds published domain events into the metrics collector.
// It subscribes to the wildcard event type and refreshes the hierarchy
// gauges whenever a container or graph event goes by.
type Listener struct {
	collector  *Collector
	containers Counter
	graphs     Counter
}

// NewListener creates a metrics listener. The counters may be nil, in
// which case only event totals are recorded.
func NewListener(collector *Collector, containers, graphs Counter) *Listener {
	return &Listener{
		collector:  collector,
		containers: containers,
		graphs:     graphs,
	}
}

// Handle records the event and refreshes gauges touched by it
func (l *Listener) Handle(ctx context.Context, event events.DomainEvent) error {
	eventType := event.GetEventType()
	l.collector.ObserveEvent(eventType)

	switch e := event.(type) {
	case events.ElementsPromoted:
		l.collector.ObservePromotion(e.SourceScope, e.TargetScope, e.Elapsed)
	case events.IntegrityValidated:
		l.collector.SetIntegrityFindings("orphaned_containers", e.OrphanedContainers)
		l.collector.SetIntegrityFindings("orphaned_graphs", e.OrphanedGraphs)
		l.collector.SetIntegrityFindings("invalid_flows", e.InvalidFlows)
		l.collector.SetIntegrityFindings("generation_mismatches", e.GenerationMismatches)
	case events.IntegrityRepaired:
		l.collector.ObserveRepairActions("container_healed", e.ContainersHealed)
		l.collector.ObserveRepairActions("graph_removed", e.GraphsRemoved)
		l.collector.ObserveRepairActions("generation_reset", e.GenerationsReset)
	}

	if l.containers != nil && l.graphs != nil && touchesHierarchy(eventType) {
		l.collector.SetHierarchySize(l.containers.Count(ctx), l.graphs.Count(ctx))
	}
	return nil
}

// CanHandle accepts every event type
func (l *Listener) CanHandle(eventType string) bool {
	return true
}

func touchesHierarchy(eventType string) bool {
	return strings.HasPrefix(eventType, "container.") || strings.HasPrefix(eventType, "graph.")
}
