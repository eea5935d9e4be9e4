package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes ticket domain events.
type EventPublisher struct {
	producer *Producer
}

func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func (ep *EventPublisher) PublishTicketPaid(ctx context.Context, event *models.TicketPaidEvent) error {
	return ep.producer.PublishEvent(ctx, ticketKey(event.TicketID), event)
}

func (ep *EventPublisher) PublishTicketChanged(ctx context.Context, event *models.TicketChangedEvent) error {
	return ep.producer.PublishEvent(ctx, ticketKey(event.TicketID), event)
}

func ticketKey(ticketID string) string {
	return fmt.Sprintf("ticket-%s", ticketID)
}

// EventHandler routes incoming messages by event type.
type EventHandler struct {
	onTicketPaid    func(context.Context, *models.TicketPaidEvent) error
	onTicketChanged func(context.Context, *models.TicketChangedEvent) error
	logger          *zap.Logger
}

func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

func (eh *EventHandler) OnTicketPaid(handler func(context.Context, *models.TicketPaidEvent) error) {
	eh.onTicketPaid = handler
}

// OnTicketChanged registers a handler for every non-payment transition.
func (eh *EventHandler) OnTicketChanged(handler func(context.Context, *models.TicketChangedEvent) error) {
	eh.onTicketChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeTicketPaid:
		if eh.onTicketPaid != nil {
			var event models.TicketPaidEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal TicketPaid event: %w", err)
			}
			return eh.onTicketPaid(ctx, &event)
		}

	case models.EventTypeTicketCheckedIn,
		models.EventTypeTicketCheckInUndone,
		models.EventTypeTicketRefunded,
		models.EventTypeTicketTransferred,
		models.EventTypeTicketCancelled:
		if eh.onTicketChanged != nil {
			var event models.TicketChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onTicketChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
