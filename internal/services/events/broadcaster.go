package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeConversationStarted EventType = "conversation.started"
	EventTypeLineStarted         EventType = "line.started"
	EventTypeRevealProgress      EventType = "reveal.progress"
	EventTypeLineAwaiting        EventType = "line.awaiting"
	EventTypeChoicesPresented    EventType = "choices.presented"
	EventTypeEventExecuted       EventType = "event.executed"
	EventTypeConversationEnded   EventType = "conversation.ended"
	EventTypeConversationError   EventType = "conversation.error"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ChannelFor names the Redis channel carrying one session's events
func ChannelFor(sessionID string) string {
	return fmt.Sprintf("conversation-events:%s", sessionID)
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishConversationStarted publishes a conversation.started event
func (b *Broadcaster) PublishConversationStarted(ctx context.Context, sessionID uuid.UUID, document, language, playerID string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeConversationStarted,
		Data: map[string]any{
			"document":  document,
			"language":  language,
			"player_id": playerID,
		},
	})
}

// PublishLineStarted publishes a line.started event. The line cue doubles
// as the voice-over hook, so it carries the full prepared text.
func (b *Broadcaster) PublishLineStarted(ctx context.Context, sessionID uuid.UUID, lineID, nametag, text string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeLineStarted,
		Data: map[string]any{
			"line_id": lineID,
			"nametag": nametag,
			"text":    text,
		},
	})
}

// PublishRevealProgress publishes a reveal.progress event
func (b *Broadcaster) PublishRevealProgress(ctx context.Context, sessionID uuid.UUID, visible, total int) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeRevealProgress,
		Data: map[string]any{
			"visible": visible,
			"total":   total,
		},
	})
}

// PublishLineAwaiting publishes a line.awaiting event once a line's text is
// fully revealed and the session waits for a confirm
func (b *Broadcaster) PublishLineAwaiting(ctx context.Context, sessionID uuid.UUID, lineID string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeLineAwaiting,
		Data: map[string]any{
			"line_id": lineID,
		},
	})
}

// PublishChoicesPresented publishes a choices.presented event
func (b *Broadcaster) PublishChoicesPresented(ctx context.Context, sessionID uuid.UUID, choices []string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeChoicesPresented,
		Data: map[string]any{
			"choices": choices,
		},
	})
}

// PublishEventExecuted publishes an event.executed event for an inline command
func (b *Broadcaster) PublishEventExecuted(ctx context.Context, sessionID uuid.UUID, lineID, command string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeEventExecuted,
		Data: map[string]any{
			"line_id": lineID,
			"command": command,
		},
	})
}

// PublishConversationEnded publishes a conversation.ended event
func (b *Broadcaster) PublishConversationEnded(ctx context.Context, sessionID uuid.UUID) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeConversationEnded,
		Data: map[string]any{
			"status": "ended",
		},
	})
}

// PublishConversationError publishes a conversation.error event. These are
// recoverable faults: the conversation has already ended safely.
func (b *Broadcaster) PublishConversationError(ctx context.Context, sessionID uuid.UUID, errorMsg string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeConversationError,
		Data: map[string]any{
			"status": "error",
			"error":  errorMsg,
		},
	})
}

// publish sends an event to the session-specific channel
func (b *Broadcaster) publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	event.SessionID = sessionID.String()
	channel := ChannelFor(event.SessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
	)

	return nil
}
