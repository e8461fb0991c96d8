package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	infraevents "github.com/PRicaldone/atelier-sub003/infrastructure/events"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// heartbeatInterval keeps idle SSE connections alive through proxies
const heartbeatInterval = 25 * time.Second

// EventsHandler re-exposes the domain event stream over SSE so the
// renderer can refresh on engine changes
type EventsHandler struct {
	bus    ports.EventBus
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewEventsHandler creates an events handler
func NewEventsHandler(bus ports.EventBus, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		bus:    bus,
		errors: errorHandler,
		logger: logger,
	}
}

// streamSubscriber bridges bus dispatch into a per-connection channel.
// A slow consumer drops events rather than stalling dispatch; the
// renderer refreshes from the authoritative state anyway.
type streamSubscriber struct {
	events chan events.DomainEvent
}

func newStreamSubscriber(buffer int) *streamSubscriber {
	return &streamSubscriber{events: make(chan events.DomainEvent, buffer)}
}

func (s *streamSubscriber) Handle(ctx context.Context, event events.DomainEvent) error {
	select {
	case s.events <- event:
	default:
	}
	return nil
}

func (s *streamSubscriber) CanHandle(eventType string) bool {
	return true
}

// Stream handles GET /events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.errors.HandleStatus(w, r, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	subscriber := newStreamSubscriber(64)
	if err := h.bus.Subscribe(infraevents.WildcardEventType, subscriber); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	defer func() {
		if err := h.bus.Unsubscribe(infraevents.WildcardEventType, subscriber); err != nil {
			h.logger.Warn("Failed to unsubscribe event stream", zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("Event stream opened", zap.String("remoteAddr", r.RemoteAddr))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("Event stream closed", zap.String("remoteAddr", r.RemoteAddr))
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event := <-subscriber.events:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to encode event for stream",
					zap.String("eventType", event.GetEventType()),
					zap.Error(err),
				)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.GetEventType(), payload)
			flusher.Flush()
		}
	}
}
