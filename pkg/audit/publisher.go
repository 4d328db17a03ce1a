package audit

import (
	"context"
	"time"

	"campus-assistant-be/internal/pkg/logger"
	pkgEvents "campus-assistant-be/pkg/events"
)

const logModule = "EVENTS"

// EventSink is satisfied by the NATS publisher.
type EventSink interface {
	Publish(ctx context.Context, event pkgEvents.Event) error
}

// Publisher abstracts audit event publishing for assistant operations
type Publisher interface {
	PublishQuestionAnswered(ctx context.Context, sessionID, model, provider, outcome string, elapsed time.Duration, chunks int)
	PublishSessionCleared(ctx context.Context, sessionID string, removed bool)
	PublishDefaultModelChanged(ctx context.Context, from, to string)
	PublishSessionsEvicted(ctx context.Context, removed, remaining int)
}

// NatsPublisher implements Publisher; a nil sink makes every call a no-op so
// the service runs without a broker.
type NatsPublisher struct {
	sink   EventSink
	logger logger.ILogger
}

func NewNatsPublisher(sink EventSink, logger logger.ILogger) *NatsPublisher {
	return &NatsPublisher{sink: sink, logger: logger}
}

func (p *NatsPublisher) publish(ctx context.Context, evt pkgEvents.BaseEvent) {
	if p == nil || p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, evt); err != nil {
		p.logger.Error(logModule, "Failed to publish "+evt.Type+" event", map[string]interface{}{"error": err.Error()})
	}
}

func (p *NatsPublisher) PublishQuestionAnswered(ctx context.Context, sessionID, model, provider, outcome string, elapsed time.Duration, chunks int) {
	p.publish(ctx, pkgEvents.New(pkgEvents.TypeQuestionAnswered, map[string]interface{}{
		"session_id": sessionID,
		"model":      model,
		"provider":   provider,
		"outcome":    outcome,
		"elapsed_ms": elapsed.Milliseconds(),
		"chunks":     chunks,
	}))
}

func (p *NatsPublisher) PublishSessionCleared(ctx context.Context, sessionID string, removed bool) {
	p.publish(ctx, pkgEvents.New(pkgEvents.TypeSessionCleared, map[string]interface{}{
		"session_id": sessionID,
		"removed":    removed,
	}))
}

func (p *NatsPublisher) PublishDefaultModelChanged(ctx context.Context, from, to string) {
	p.publish(ctx, pkgEvents.New(pkgEvents.TypeDefaultModelChanged, map[string]interface{}{
		"from": from,
		"to":   to,
	}))
}

func (p *NatsPublisher) PublishSessionsEvicted(ctx context.Context, removed, remaining int) {
	p.publish(ctx, pkgEvents.New(pkgEvents.TypeSessionsEvicted, map[string]interface{}{
		"removed":   removed,
		"remaining": remaining,
	}))
}
