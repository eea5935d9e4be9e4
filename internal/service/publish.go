package service

import (
	"context"
	"time"

	"ticketing-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher is implemented by broker.EventPublisher.
type EventPublisher interface {
	PublishTicketPaid(ctx context.Context, event *models.TicketPaidEvent) error
	PublishTicketChanged(ctx context.Context, event *models.TicketChangedEvent) error
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func ticketPaidEvent(t *models.Ticket, eventName string) *models.TicketPaidEvent {
	return &models.TicketPaidEvent{
		BaseEvent:         newBaseEvent(models.EventTypeTicketPaid),
		TicketID:          t.ID,
		EventRef:          t.EventID,
		EventName:         eventName,
		HolderName:        t.Name,
		Email:             models.StringValue(t.Email),
		Phone:             models.StringValue(t.Phone),
		Token:             models.StringValue(t.Token),
		ProviderPaymentID: models.StringValue(t.ProviderPaymentID),
	}
}

func ticketChangedEvent(eventType string, t *models.Ticket) *models.TicketChangedEvent {
	return &models.TicketChangedEvent{
		BaseEvent:   newBaseEvent(eventType),
		TicketID:    t.ID,
		EventRef:    t.EventID,
		Status:      string(t.Status),
		CheckedIn:   t.CheckedIn,
		CheckedInAt: t.CheckedInAt,
		HolderName:  t.Name,
	}
}

// QRPayload returns the structured payload for a paid ticket, or "" when
// no token has been issued.
func QRPayload(t *models.Ticket) string {
	if t.Token == nil {
		return ""
	}
	return ScanPayload{TicketID: t.ID, Token: *t.Token}.Encode()
}

// publishPaid and publishChanged are best effort: the transition is
// already persisted when they run.
func publishPaid(ctx context.Context, logger *zap.Logger, publisher EventPublisher, t *models.Ticket, eventName string) {
	if err := publisher.PublishTicketPaid(ctx, ticketPaidEvent(t, eventName)); err != nil {
		logger.Error("Failed to publish ticket paid event",
			zap.String("ticket_id", t.ID),
			zap.Error(err))
	}
}

func publishChanged(ctx context.Context, logger *zap.Logger, publisher EventPublisher, eventType string, t *models.Ticket) {
	if err := publisher.PublishTicketChanged(ctx, ticketChangedEvent(eventType, t)); err != nil {
		logger.Error("Failed to publish ticket event",
			zap.String("event_type", eventType),
			zap.String("ticket_id", t.ID),
			zap.Error(err))
	}
}
