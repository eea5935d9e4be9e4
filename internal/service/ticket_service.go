package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TicketService covers purchase and the administrative transitions.
type TicketService struct {
	stores    *Stores
	engine    *lifecycle.Engine
	publisher EventPublisher
	logger    *zap.Logger
}

func NewTicketService(stores *Stores, engine *lifecycle.Engine, publisher EventPublisher) *TicketService {
	return &TicketService{
		stores:    stores,
		engine:    engine,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

type PurchaseRequest struct {
	EventID string `json:"event_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

type PurchaseResponse struct {
	Ticket  *models.Ticket `json:"ticket"`
	Amount  int64          `json:"amount"`
	OrderID string         `json:"order_id,omitempty"`
	QRData  string         `json:"qr_data,omitempty"`
}

// HolderRequest names the new holder of a transferred ticket.
type HolderRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (r HolderRequest) holder() models.Holder {
	return models.Holder{
		Name:  strings.TrimSpace(r.Name),
		Email: models.StringPtr(strings.TrimSpace(r.Email)),
		Phone: models.StringPtr(strings.TrimSpace(r.Phone)),
	}
}

// Purchase reserves a seat and issues a ticket. Free events are paid on
// the spot; paid events wait for the gateway under a mock order id.
func (s *TicketService) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	ctx, span := util.StartSpan(ctx, "TicketService.Purchase")
	defer span.End()

	holder := HolderRequest{Name: req.Name, Email: req.Email, Phone: req.Phone}.holder()
	if holder.Name == "" || strings.TrimSpace(req.EventID) == "" {
		return nil, fmt.Errorf("%w: event_id and name are required", ErrInvalidInput)
	}

	ev, err := s.stores.event(ctx, strings.TrimSpace(req.EventID))
	if err != nil {
		return nil, err
	}

	if err := ev.owner.ReserveSeat(ctx, ev.value.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrSoldOut):
			util.TicketsCreatedTotal.WithLabelValues("sold_out").Inc()
			return nil, ErrSoldOut
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrEventNotFound
		default:
			return nil, fmt.Errorf("%w: reserve seat: %v", ErrStoreFailure, err)
		}
	}

	ticket := s.engine.Issue(uuid.New().String(), &ev.value, holder)
	if ticket.Status == models.TicketStatusPending {
		ticket.ProviderOrderID = models.StringPtr("order_" + uuid.New().String())
	}

	// the ticket lives with its event; the persistent store cannot hold a
	// ticket for an event only the fallback store knows
	if err := ev.owner.CreateTicket(ctx, &ticket); err != nil {
		s.releaseSeat(ctx, ev.value.ID)
		return nil, fmt.Errorf("%w: create ticket: %v", ErrStoreFailure, err)
	}

	util.TicketsCreatedTotal.WithLabelValues(string(ticket.Status)).Inc()
	s.logger.Info("Ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("event_id", ticket.EventID),
		zap.String("status", string(ticket.Status)))

	resp := &PurchaseResponse{Ticket: &ticket, Amount: ev.value.Price}
	if ticket.Status == models.TicketStatusPaid {
		util.TicketsPaidTotal.Inc()
		publishPaid(ctx, s.logger, s.publisher, &ticket, ev.value.Name)
		resp.QRData = QRPayload(&ticket)
	} else {
		resp.OrderID = models.StringValue(ticket.ProviderOrderID)
	}
	return resp, nil
}

func (s *TicketService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	found, err := s.stores.ticketByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &found.value, nil
}

func (s *TicketService) UndoCheckIn(ctx context.Context, id string) (*models.Ticket, error) {
	next, err := s.transition(ctx, id, "undo_checkin", s.engine.UndoCheckIn,
		func(ts TicketStore, t *models.Ticket) error { return ts.UpdateCheckedIn(ctx, t, false) })
	if err != nil {
		return nil, err
	}
	publishChanged(ctx, s.logger, s.publisher, models.EventTypeTicketCheckInUndone, next)
	return next, nil
}

func (s *TicketService) Refund(ctx context.Context, id string) (*models.Ticket, error) {
	next, err := s.transition(ctx, id, "refund", s.engine.Refund,
		func(ts TicketStore, t *models.Ticket) error { return ts.UpdateStatus(ctx, t) })
	if err != nil {
		return nil, err
	}
	s.releaseSeat(ctx, next.EventID)
	publishChanged(ctx, s.logger, s.publisher, models.EventTypeTicketRefunded, next)
	return next, nil
}

func (s *TicketService) Cancel(ctx context.Context, id string) (*models.Ticket, error) {
	next, err := s.transition(ctx, id, "cancel", s.engine.Cancel,
		func(ts TicketStore, t *models.Ticket) error { return ts.UpdateStatus(ctx, t) })
	if err != nil {
		return nil, err
	}
	s.releaseSeat(ctx, next.EventID)
	publishChanged(ctx, s.logger, s.publisher, models.EventTypeTicketCancelled, next)
	return next, nil
}

// Transfer hands the ticket to a new holder. The returned payload carries
// the re-issued token; the previous QR code stops verifying.
func (s *TicketService) Transfer(ctx context.Context, id string, req *HolderRequest) (*models.Ticket, string, error) {
	holder := req.holder()
	next, err := s.transition(ctx, id, "transfer",
		func(t models.Ticket) (models.Ticket, error) { return s.engine.Transfer(t, holder) },
		func(ts TicketStore, t *models.Ticket) error { return ts.UpdateHolder(ctx, t) })
	if err != nil {
		return nil, "", err
	}
	publishChanged(ctx, s.logger, s.publisher, models.EventTypeTicketTransferred, next)
	return next, QRPayload(next), nil
}

// transition loads the ticket, applies the engine step and writes the
// result back to the store that owns the ticket.
func (s *TicketService) transition(
	ctx context.Context,
	id, name string,
	apply func(models.Ticket) (models.Ticket, error),
	persist func(TicketStore, *models.Ticket) error,
) (*models.Ticket, error) {
	ctx, span := util.StartSpan(ctx, "TicketService."+name)
	defer span.End()

	found, err := s.stores.ticketByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := apply(found.value)
	if err != nil {
		util.TicketTransitionsTotal.WithLabelValues(name, "rejected").Inc()
		return nil, err
	}

	if err := persist(found.owner, &next); err != nil {
		util.TicketTransitionsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error("Failed to persist ticket transition",
			zap.String("transition", name),
			zap.String("ticket_id", id),
			zap.String("store", found.source),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	util.TicketTransitionsTotal.WithLabelValues(name, "success").Inc()
	s.logger.Info("Ticket transition applied",
		zap.String("transition", name),
		zap.String("ticket_id", id),
		zap.String("status", string(next.Status)))
	return &next, nil
}

func (s *TicketService) releaseSeat(ctx context.Context, eventID string) {
	ev, err := s.stores.event(ctx, eventID)
	if err == nil {
		err = ev.owner.ReleaseSeat(ctx, eventID)
	}
	if err != nil {
		s.logger.Warn("Failed to release seat", zap.String("event_id", eventID), zap.Error(err))
	}
}
