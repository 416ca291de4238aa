package accesscontrol

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/kb-management/internal/core/events"
	"github.com/google/uuid"
)

const (
	EventAccessGranted        = "access.granted"
	EventAccessRevoked        = "access.revoked"
	EventOwnershipTransferred = "access.ownership_transferred"
)

// EventPublisher decouples the admin service from the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

func (s *AdminService) publish(ctx context.Context, eventType, kbID string, subject SubjectRef, level Level, actorID string) {
	if s.events == nil {
		return
	}

	event := events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"kb_id":        kbID,
			"subject_kind": string(subject.Kind),
			"subject_id":   subject.ID,
			"level":        string(level),
			"actor_id":     actorID,
		},
	}

	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish access event", "event_type", eventType, "error", err)
	}
}

// RegisterAuditSubscriber attaches a subscriber that writes an audit line for
// every grant mutation. Wired once at startup.
func RegisterAuditSubscriber(bus *events.EventBus, logger *slog.Logger) {
	handler := func(ctx context.Context, event events.Event) error {
		logger.Info("access audit",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"occurred_at", event.OccurredAt(),
			"payload", event.Payload())
		return nil
	}

	bus.Subscribe(EventAccessGranted, handler)
	bus.Subscribe(EventAccessRevoked, handler)
	bus.Subscribe(EventOwnershipTransferred, handler)
}
