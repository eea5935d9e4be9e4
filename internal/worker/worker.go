package worker

import (
	"context"
	"log"

	"ticketing-service/internal/broker"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// PaidTicketHandler is implemented by notify.Dispatcher.
type PaidTicketHandler interface {
	HandleTicketPaid(ctx context.Context, event *models.TicketPaidEvent) error
}

// MessageSource is implemented by broker.Consumer.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// NotificationWorker consumes ticket events and sends purchase
// confirmations off the request path.
type NotificationWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

func NewNotificationWorker(consumer MessageSource, notifications PaidTicketHandler) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnTicketPaid(notifications.HandleTicketPaid)
	w.eventHandler.OnTicketChanged(w.logTransition)

	return w
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) logTransition(_ context.Context, event *models.TicketChangedEvent) error {
	w.logger.Info("Ticket transition",
		zap.String("event_type", event.EventType),
		zap.String("ticket_id", event.TicketID),
		zap.String("status", event.Status),
		zap.Bool("checked_in", event.CheckedIn))
	return nil
}
