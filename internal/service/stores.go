package service

import (
	"context"
	"errors"
	"sync"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// TicketStore is implemented by the persistent store and the fallback
// store alike.
type TicketStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) store.Lookup[models.Event]
	ListEvents(ctx context.Context) ([]models.Event, error)
	ReserveSeat(ctx context.Context, eventID string) error
	ReleaseSeat(ctx context.Context, eventID string) error

	CreateTicket(ctx context.Context, t *models.Ticket) error
	FindTicketByID(ctx context.Context, id string) store.Lookup[models.Ticket]
	FindTicketByToken(ctx context.Context, token string) store.Lookup[models.Ticket]
	FindTicketByOrderID(ctx context.Context, orderID string) store.Lookup[models.Ticket]
	UpdateStatus(ctx context.Context, t *models.Ticket) error
	UpdateCheckedIn(ctx context.Context, t *models.Ticket, conditional bool) error
	UpdateHolder(ctx context.Context, t *models.Ticket) error
}

const (
	sourcePrimary  = "primary"
	sourceFallback = "fallback"
)

// Stores decides between the persistent store and the fallback store.
// Reads try the persistent store first and move to the fallback when it is
// unavailable or does not know the record. Writes go to the store the
// record was read from.
type Stores struct {
	primary    TicketStore
	fallback   TicketStore
	eventNames sync.Map
	logger     *zap.Logger
}

func NewStores(primary, fallback TicketStore) *Stores {
	return &Stores{primary: primary, fallback: fallback, logger: util.GetLogger()}
}

// located is a record together with the store that owns it.
type located[T any] struct {
	value  T
	owner  TicketStore
	source string
}

func locate[T any](ctx context.Context, s *Stores, op string, find func(TicketStore) store.Lookup[T]) (*located[T], store.Result) {
	primary := find(s.primary)
	switch primary.Result {
	case store.Found:
		return &located[T]{value: *primary.Value, owner: s.primary, source: sourcePrimary}, store.Found
	case store.Unavailable:
		util.StoreUnavailableTotal.WithLabelValues(op).Inc()
		s.logger.Warn("Persistent store unavailable, trying fallback store",
			zap.String("operation", op),
			zap.Error(primary.Err))
	}

	fallback := find(s.fallback)
	switch fallback.Result {
	case store.Found:
		return &located[T]{value: *fallback.Value, owner: s.fallback, source: sourceFallback}, store.Found
	case store.Unavailable:
		s.logger.Error("Fallback store unavailable", zap.String("operation", op), zap.Error(fallback.Err))
		if primary.Result == store.Unavailable {
			return nil, store.Unavailable
		}
	}
	return nil, store.NotFound
}

func (s *Stores) ticketByID(ctx context.Context, id string) (*located[models.Ticket], error) {
	return ticketResult(locate(ctx, s, "find_ticket", func(ts TicketStore) store.Lookup[models.Ticket] {
		return ts.FindTicketByID(ctx, id)
	}))
}

func (s *Stores) ticketByToken(ctx context.Context, token string) (*located[models.Ticket], error) {
	return ticketResult(locate(ctx, s, "find_ticket_by_token", func(ts TicketStore) store.Lookup[models.Ticket] {
		return ts.FindTicketByToken(ctx, token)
	}))
}

func (s *Stores) ticketByOrderID(ctx context.Context, orderID string) (*located[models.Ticket], error) {
	return ticketResult(locate(ctx, s, "find_ticket_by_order", func(ts TicketStore) store.Lookup[models.Ticket] {
		return ts.FindTicketByOrderID(ctx, orderID)
	}))
}

func (s *Stores) event(ctx context.Context, id string) (*located[models.Event], error) {
	found, result := locate(ctx, s, "get_event", func(ts TicketStore) store.Lookup[models.Event] {
		return ts.GetEvent(ctx, id)
	})
	switch result {
	case store.Found:
		s.rememberEvent(&found.value)
		return found, nil
	case store.Unavailable:
		return nil, ErrStoreFailure
	default:
		return nil, ErrEventNotFound
	}
}

// rememberEvent caches the event's display name. Events are never renamed.
func (s *Stores) rememberEvent(e *models.Event) {
	s.eventNames.Store(e.ID, e.Name)
}

// eventName is best effort; an unknown event yields "". Only owner, the
// store holding the ticket, is read, and only on a cache miss.
func (s *Stores) eventName(ctx context.Context, owner TicketStore, id string) string {
	if name, ok := s.eventNames.Load(id); ok {
		return name.(string)
	}
	l := owner.GetEvent(ctx, id)
	if l.Result != store.Found {
		return ""
	}
	s.rememberEvent(l.Value)
	return l.Value.Name
}

func ticketResult(found *located[models.Ticket], result store.Result) (*located[models.Ticket], error) {
	switch result {
	case store.Found:
		return found, nil
	case store.Unavailable:
		return nil, ErrStoreFailure
	default:
		return nil, ErrTicketNotFound
	}
}

// create writes a new record to the persistent store, or to the fallback
// store when the persistent store cannot be reached.
func (s *Stores) create(ctx context.Context, op string, write func(TicketStore) error) (TicketStore, error) {
	err := write(s.primary)
	if err == nil {
		return s.primary, nil
	}
	if !errors.Is(err, store.ErrUnavailable) {
		return nil, err
	}

	util.StoreUnavailableTotal.WithLabelValues(op).Inc()
	s.logger.Warn("Persistent store unavailable, writing to fallback store",
		zap.String("operation", op),
		zap.Error(err))

	if err := write(s.fallback); err != nil {
		return nil, err
	}
	return s.fallback, nil
}

// PrimaryReachable reports whether the persistent store answers.
func (s *Stores) PrimaryReachable(ctx context.Context) bool {
	p, ok := s.primary.(interface{ Ping(context.Context) error })
	if !ok {
		return true
	}
	return p.Ping(ctx) == nil
}
