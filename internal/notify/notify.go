// Package notify delivers purchase confirmations to ticket holders.
// Delivery providers sit behind Notifier; failures are logged and never
// reach the caller.
package notify

import (
	"context"
	"fmt"
	"sync"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends a message over one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of a provider.
type LogNotifier struct {
	channel Channel
	logger  *zap.Logger
}

func NewLogNotifier(channel Channel) *LogNotifier {
	return &LogNotifier{channel: channel, logger: util.GetLogger()}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("Notification",
		zap.String("channel", string(n.channel)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// Dispatcher fans a paid ticket out to every channel the holder can be
// reached on.
type Dispatcher struct {
	notifiers map[Channel]Notifier
	logger    *zap.Logger
}

func NewDispatcher(notifiers map[Channel]Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: util.GetLogger()}
}

// HandleTicketPaid sends the purchase confirmation. It always returns nil.
func (d *Dispatcher) HandleTicketPaid(ctx context.Context, event *models.TicketPaidEvent) error {
	msg := purchaseMessage(event)

	targets := map[Channel]string{}
	if event.Email != "" {
		targets[ChannelEmail] = event.Email
	}
	if event.Phone != "" {
		targets[ChannelSMS] = event.Phone
		targets[ChannelWhatsApp] = event.Phone
	}

	var wg sync.WaitGroup
	for channel, to := range targets {
		n, ok := d.notifiers[channel]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(channel Channel, n Notifier, m Message) {
			defer wg.Done()
			if err := n.Notify(ctx, m); err != nil {
				util.NotificationsSentTotal.WithLabelValues(string(channel), "error").Inc()
				d.logger.Warn("Notification failed",
					zap.String("channel", string(channel)),
					zap.String("ticket_id", event.TicketID),
					zap.Error(err))
				return
			}
			util.NotificationsSentTotal.WithLabelValues(string(channel), "sent").Inc()
		}(channel, n, Message{To: to, Subject: msg.Subject, Body: msg.Body})
	}
	wg.Wait()
	return nil
}

func purchaseMessage(event *models.TicketPaidEvent) Message {
	return Message{
		Subject: fmt.Sprintf("Your ticket for %s", event.EventName),
		Body: fmt.Sprintf("Hi %s, your ticket %s for %s is confirmed. Show this code at the entrance: %s:%s",
			event.HolderName, event.TicketID, event.EventName, event.TicketID, event.Token),
	}
}
