package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticketing-service/internal/fallback"
	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/token"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-ticket-secret"

var testNow = time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	paid    []*models.TicketPaidEvent
	changed []*models.TicketChangedEvent
	err     error
}

func (p *recordingPublisher) PublishTicketPaid(_ context.Context, e *models.TicketPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return p.err
}

func (p *recordingPublisher) PublishTicketChanged(_ context.Context, e *models.TicketChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *recordingPublisher) changedTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changed))
	for _, e := range p.changed {
		out = append(out, e.EventType)
	}
	return out
}

type harness struct {
	primary  TicketStore
	fallback *fallback.Store
	stores   *Stores
	tokens   *token.Service
	engine   *lifecycle.Engine
	pub      *recordingPublisher
}

// newHarness uses an in-memory store as the persistent store so tests can
// tell which side a write landed on.
func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, fallback.NewStore())
}

func newHarnessWith(t *testing.T, primary TicketStore) *harness {
	t.Helper()
	tokens, err := token.NewService(testSecret)
	require.NoError(t, err)

	fb := fallback.NewStore()
	return &harness{
		primary:  primary,
		fallback: fb,
		stores:   NewStores(primary, fb),
		tokens:   tokens,
		engine:   lifecycle.NewEngine(tokens, lifecycle.WithClock(func() time.Time { return testNow })),
		pub:      &recordingPublisher{},
	}
}

func (h *harness) checkIns(conditional bool) *CheckInService {
	return NewCheckInService(h.stores, h.engine, h.tokens, h.pub, conditional)
}

func (h *harness) tickets() *TicketService {
	return NewTicketService(h.stores, h.engine, h.pub)
}

func (h *harness) seedEvent(t *testing.T, ts TicketStore, id string, price int64, capacity int) models.Event {
	t.Helper()
	ev := models.Event{
		ID:       id,
		Name:     "Event " + id,
		StartsAt: testNow.Add(24 * time.Hour),
		Venue:    "Main Hall",
		Price:    price,
		Capacity: capacity,
	}
	require.NoError(t, ts.CreateEvent(context.Background(), &ev))
	return ev
}

// seedTicket stores a ticket for ev in ts. Free events yield paid tickets
// with a token; priced events yield pending ones.
func (h *harness) seedTicket(t *testing.T, ts TicketStore, id string, ev models.Event) models.Ticket {
	t.Helper()
	email := "asha@example.com"
	tk := h.engine.Issue(id, &ev, models.Holder{Name: "Asha Rao", Email: &email})
	if tk.Status == models.TicketStatusPending {
		tk.ProviderOrderID = models.StringPtr("order_" + id)
	}
	require.NoError(t, ts.CreateTicket(context.Background(), &tk))
	return tk
}

func (h *harness) stored(t *testing.T, ts TicketStore, id string) models.Ticket {
	t.Helper()
	l := ts.FindTicketByID(context.Background(), id)
	require.NotNil(t, l.Value, "ticket %s not in store", id)
	return *l.Value
}

// staleStore serves an outdated copy of one ticket on its first read, the
// view a device has when another device admitted the ticket in between.
type staleStore struct {
	*fallback.Store
	mu    sync.Mutex
	stale *models.Ticket
}

func (s *staleStore) FindTicketByID(ctx context.Context, id string) store.Lookup[models.Ticket] {
	s.mu.Lock()
	stale := s.stale
	s.stale = nil
	s.mu.Unlock()
	if stale != nil && stale.ID == id {
		c := stale.Clone()
		return store.FoundValue(&c)
	}
	return s.Store.FindTicketByID(ctx, id)
}

var errBoom = errors.New("boom")
