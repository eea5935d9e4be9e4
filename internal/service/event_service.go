package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventService struct {
	stores *Stores
	logger *zap.Logger
}

func NewEventService(stores *Stores) *EventService {
	return &EventService{stores: stores, logger: util.GetLogger()}
}

type CreateEventRequest struct {
	Name     string    `json:"name" binding:"required"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
	Venue    string    `json:"venue" binding:"required"`
	Price    int64     `json:"price" binding:"min=0"`
	Capacity int       `json:"capacity" binding:"required,min=1"`
}

func (s *EventService) CreateEvent(ctx context.Context, req *CreateEventRequest) (*models.Event, error) {
	ctx, span := util.StartSpan(ctx, "EventService.CreateEvent")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" || req.Capacity <= 0 || req.Price < 0 {
		return nil, fmt.Errorf("%w: name, capacity and a non-negative price are required", ErrInvalidInput)
	}

	event := &models.Event{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(req.Name),
		StartsAt:  req.StartsAt.UTC(),
		Venue:     strings.TrimSpace(req.Venue),
		Price:     req.Price,
		Capacity:  req.Capacity,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.stores.create(ctx, "create_event", func(ts TicketStore) error {
		return ts.CreateEvent(ctx, event)
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	s.stores.rememberEvent(event)

	s.logger.Info("Event created", zap.String("event_id", event.ID), zap.String("name", event.Name))
	return event, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	found, err := s.stores.event(ctx, id)
	if err != nil {
		return nil, err
	}
	return &found.value, nil
}

// ListEvents merges both stores; events only the fallback store knows
// about were created during an outage.
func (s *EventService) ListEvents(ctx context.Context) ([]models.Event, error) {
	primary, err := s.stores.primary.ListEvents(ctx)
	if err != nil {
		util.StoreUnavailableTotal.WithLabelValues("list_events").Inc()
		s.logger.Warn("Persistent store unavailable, listing fallback events only", zap.Error(err))
	}
	fallback, ferr := s.stores.fallback.ListEvents(ctx)
	if err != nil && ferr != nil {
		return nil, ErrStoreFailure
	}

	seen := make(map[string]bool, len(primary))
	out := make([]models.Event, 0, len(primary)+len(fallback))
	for _, e := range primary {
		seen[e.ID] = true
		out = append(out, e)
	}
	for _, e := range fallback {
		if !seen[e.ID] {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}
