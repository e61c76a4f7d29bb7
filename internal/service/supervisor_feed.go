package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exam-proctor-be/internal/pkg/logger"
	internalWS "exam-proctor-be/internal/websocket"
	"exam-proctor-be/pkg/events"
	pktNats "exam-proctor-be/pkg/nats"

	"go.uber.org/multierr"
)

// RoomSender pushes a typed frame to every connection in a room.
// Implemented by the WebSocket hub.
type RoomSender interface {
	SendToRoom(ctx context.Context, room, msgType string, data interface{}) error
}

// EventPublisher is implemented by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventSubscriber is implemented by the NATS subscriber.
type EventSubscriber interface {
	Subscribe(eventType string, durableName string, handler pktNats.EventHandler) error
}

var supervisorFrameTypes = map[string]string{
	events.MonitoringAlert: internalWS.TypeMonitoringAlert,
	events.SessionStarted:  "session_started",
	events.SessionEnded:    "session_ended",
}

// SupervisorFeed carries supervisor-facing events. With a publisher they go
// through the bus and come back via Start on whichever instance consumes
// them; without one they are pushed to the hub directly.
type SupervisorFeed struct {
	rooms      RoomSender
	publisher  EventPublisher
	subscriber EventSubscriber
	logger     logger.ILogger
}

func NewSupervisorFeed(rooms RoomSender, pub EventPublisher, sub EventSubscriber, log logger.ILogger) *SupervisorFeed {
	return &SupervisorFeed{
		rooms:      rooms,
		publisher:  pub,
		subscriber: sub,
		logger:     log,
	}
}

// Start subscribes the relay. It is a no-op without a subscriber.
func (f *SupervisorFeed) Start() error {
	if f.subscriber == nil {
		return nil
	}
	for eventType := range supervisorFrameTypes {
		durable := "proctor-supervisor-relay-" + eventType
		if err := f.subscriber.Subscribe(eventType, durable, f.handleEvent); err != nil {
			return fmt.Errorf("subscribe %s: %w", eventType, err)
		}
	}
	f.logger.Info("SupervisorFeed", "Supervisor relay started", nil)
	return nil
}

// Publish emits eventType with data for the supervisors of examID.
func (f *SupervisorFeed) Publish(ctx context.Context, eventType, examID string, data interface{}) error {
	payload, err := toPayload(data)
	if err != nil {
		return err
	}
	payload["exam_id"] = examID

	if f.publisher == nil {
		return f.deliver(ctx, eventType, payload)
	}
	return f.publisher.Publish(ctx, events.BaseEvent{
		Type:       eventType,
		Data:       payload,
		OccurredAt: time.Now(),
	})
}

func (f *SupervisorFeed) handleEvent(ctx context.Context, event events.Event) error {
	return f.deliver(ctx, event.EventType(), event.Payload())
}

func (f *SupervisorFeed) deliver(ctx context.Context, eventType string, payload map[string]interface{}) error {
	frameType, ok := supervisorFrameTypes[eventType]
	if !ok {
		f.logger.Warn("SupervisorFeed", "Dropping unknown event type", map[string]interface{}{"type": eventType})
		return nil
	}

	var err error
	if examID, _ := payload["exam_id"].(string); examID != "" {
		err = multierr.Append(err, f.rooms.SendToRoom(ctx, internalWS.ExamRoom(examID), frameType, payload))
	}
	err = multierr.Append(err, f.rooms.SendToRoom(ctx, internalWS.SupervisorsRoom, frameType, payload))
	return err
}

func toPayload(data interface{}) (map[string]interface{}, error) {
	if m, ok := data.(map[string]interface{}); ok {
		out := make(map[string]interface{}, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
