// Package fallback holds tickets in process memory while the persistent
// store is unreachable. It is not durable and not shared between
// processes; a single-instance deployment is assumed.
package fallback

import (
	"context"
	"sort"
	"sync"

	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"
)

type Store struct {
	mu      sync.RWMutex
	tickets map[string]models.Ticket
	events  map[string]models.Event
}

func NewStore() *Store {
	return &Store{
		tickets: make(map[string]models.Ticket),
		events:  make(map[string]models.Event),
	}
}

// Get returns a copy of the ticket with id.
func (s *Store) Get(id string) (models.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, false
	}
	return t.Clone(), true
}

// Set stores a copy of t, replacing any previous value.
func (s *Store) Set(t models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t.Clone()
}

// Update applies fn to the stored ticket under the write lock. The ticket
// is only replaced if fn returns nil.
func (s *Store) Update(id string, fn func(*models.Ticket) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return store.ErrNotFound
	}
	next := t.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.tickets[id] = next
	return nil
}

// FindByToken scans for the ticket currently holding token.
func (s *Store) FindByToken(token string) (models.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickets {
		if t.Token != nil && *t.Token == token {
			return t.Clone(), true
		}
	}
	return models.Ticket{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

// The methods below give the fallback the same shape as the persistent
// store so the services can treat both uniformly.

func (s *Store) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = *event
	util.FallbackStoreHitsTotal.WithLabelValues("create_event").Inc()
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) store.Lookup[models.Event] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return store.Missing[models.Event]()
	}
	util.FallbackStoreHitsTotal.WithLabelValues("get_event").Inc()
	return store.FoundValue(&e)
}

func (s *Store) ListEvents(_ context.Context) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

func (s *Store) ReserveSeat(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if e.SoldOut() {
		return store.ErrSoldOut
	}
	e.Sold++
	s.events[eventID] = e
	return nil
}

func (s *Store) ReleaseSeat(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if e.Sold > 0 {
		e.Sold--
	}
	s.events[eventID] = e
	return nil
}

func (s *Store) CreateTicket(_ context.Context, t *models.Ticket) error {
	s.Set(*t)
	util.FallbackStoreHitsTotal.WithLabelValues("create_ticket").Inc()
	return nil
}

func (s *Store) FindTicketByID(_ context.Context, id string) store.Lookup[models.Ticket] {
	t, ok := s.Get(id)
	if !ok {
		return store.Missing[models.Ticket]()
	}
	util.FallbackStoreHitsTotal.WithLabelValues("find_ticket").Inc()
	return store.FoundValue(&t)
}

func (s *Store) FindTicketByToken(_ context.Context, token string) store.Lookup[models.Ticket] {
	t, ok := s.FindByToken(token)
	if !ok {
		return store.Missing[models.Ticket]()
	}
	util.FallbackStoreHitsTotal.WithLabelValues("find_ticket_by_token").Inc()
	return store.FoundValue(&t)
}

func (s *Store) FindTicketByOrderID(_ context.Context, orderID string) store.Lookup[models.Ticket] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickets {
		if models.StringValue(t.ProviderOrderID) == orderID {
			found := t.Clone()
			util.FallbackStoreHitsTotal.WithLabelValues("find_ticket_by_order").Inc()
			return store.FoundValue(&found)
		}
	}
	return store.Missing[models.Ticket]()
}

func (s *Store) UpdateStatus(_ context.Context, t *models.Ticket) error {
	return s.Update(t.ID, func(cur *models.Ticket) error {
		cur.Status = t.Status
		cur.Token = t.Token
		cur.TokenGeneration = t.TokenGeneration
		cur.ProviderOrderID = t.ProviderOrderID
		cur.ProviderPaymentID = t.ProviderPaymentID
		cur.UpdatedAt = t.UpdatedAt
		return nil
	})
}

// UpdateCheckedIn mirrors the persistent store, including the conditional
// write.
func (s *Store) UpdateCheckedIn(_ context.Context, t *models.Ticket, conditional bool) error {
	return s.Update(t.ID, func(cur *models.Ticket) error {
		if conditional && cur.CheckedIn == t.CheckedIn {
			return store.ErrCheckInConflict
		}
		cur.CheckedIn = t.CheckedIn
		cur.CheckedInAt = t.CheckedInAt
		cur.UpdatedAt = t.UpdatedAt
		return nil
	})
}

func (s *Store) UpdateHolder(_ context.Context, t *models.Ticket) error {
	return s.Update(t.ID, func(cur *models.Ticket) error {
		cur.Name = t.Name
		cur.Email = t.Email
		cur.Phone = t.Phone
		cur.Token = t.Token
		cur.TokenGeneration = t.TokenGeneration
		cur.UpdatedAt = t.UpdatedAt
		return nil
	})
}
