// Package lifecycle is the only place ticket status transitions happen.
//
// Transitions take a ticket by value and return the next ticket. On
// rejection the input is returned untouched, so a failed transition is
// never partially applied.
package lifecycle

import (
	"strings"
	"time"

	"ticketing-service/internal/models"
)

// TokenIssuer derives admission tokens.
type TokenIssuer interface {
	DeriveGeneration(ticketID string, generation int) string
}

type Engine struct {
	tokens TokenIssuer
	now    func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(tokens TokenIssuer, opts ...Option) *Engine {
	e := &Engine{tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PaymentRef carries the gateway identifiers recorded on confirmation.
type PaymentRef struct {
	OrderID   string
	PaymentID string
}

// Issue creates a new ticket for holder. Free events skip the pending
// state and are issued paid with a token.
func (e *Engine) Issue(id string, event *models.Event, holder models.Holder) models.Ticket {
	now := e.now().UTC()
	t := models.Ticket{
		ID:        id,
		EventID:   event.ID,
		Name:      holder.Name,
		Email:     holder.Email,
		Phone:     holder.Phone,
		Status:    models.TicketStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if event.IsFree() {
		t.Status = models.TicketStatusPaid
		t.Token = e.issueToken(&t)
	}
	return t
}

// ConfirmPayment moves a pending ticket to paid and assigns its token. A
// ticket that is already paid is returned unchanged with changed=false so
// redelivered gateway callbacks succeed without side effects.
func (e *Engine) ConfirmPayment(t models.Ticket, ref PaymentRef) (next models.Ticket, changed bool, err error) {
	switch t.Status {
	case models.TicketStatusPaid:
		return t, false, nil
	case models.TicketStatusPending:
	case models.TicketStatusRefunded:
		return t, false, reject(ReasonRefunded)
	case models.TicketStatusCancelled:
		return t, false, reject(ReasonCancelled)
	default:
		return t, false, &Rejection{Reason: ReasonInvalidTransition, Status: string(t.Status)}
	}

	next = t.Clone()
	next.Status = models.TicketStatusPaid
	next.Token = e.issueToken(&next)
	if ref.OrderID != "" {
		next.ProviderOrderID = models.StringPtr(ref.OrderID)
	}
	if ref.PaymentID != "" {
		next.ProviderPaymentID = models.StringPtr(ref.PaymentID)
	}
	next.UpdatedAt = e.now().UTC()
	return next, true, nil
}

// CheckIn admits the holder. eventID, when non-empty, must match the
// ticket's event.
func (e *Engine) CheckIn(t models.Ticket, eventID string) (models.Ticket, error) {
	if err := requirePaid(t); err != nil {
		return t, err
	}
	if eventID != "" && eventID != t.EventID {
		return t, reject(ReasonWrongEvent)
	}
	if t.CheckedIn {
		return t, &Rejection{Reason: ReasonAlreadyCheckedIn, CheckedInAt: t.CheckedInAt}
	}

	next := t.Clone()
	now := e.now().UTC()
	next.CheckedIn = true
	next.CheckedInAt = &now
	next.UpdatedAt = now
	return next, nil
}

// UndoCheckIn reverts a mistaken scan.
func (e *Engine) UndoCheckIn(t models.Ticket) (models.Ticket, error) {
	if !t.CheckedIn {
		return t, reject(ReasonNotCheckedIn)
	}

	next := t.Clone()
	next.CheckedIn = false
	next.CheckedInAt = nil
	next.UpdatedAt = e.now().UTC()
	return next, nil
}

// Refund is only allowed for paid tickets that were never used for entry.
func (e *Engine) Refund(t models.Ticket) (models.Ticket, error) {
	if err := requirePaid(t); err != nil {
		return t, err
	}
	if t.CheckedIn {
		return t, reject(ReasonCheckedIn)
	}

	next := t.Clone()
	next.Status = models.TicketStatusRefunded
	next.UpdatedAt = e.now().UTC()
	return next, nil
}

// Cancel abandons an unpaid ticket.
func (e *Engine) Cancel(t models.Ticket) (models.Ticket, error) {
	switch t.Status {
	case models.TicketStatusPending:
	case models.TicketStatusCancelled:
		return t, reject(ReasonCancelled)
	case models.TicketStatusRefunded:
		return t, reject(ReasonRefunded)
	default:
		return t, &Rejection{Reason: ReasonInvalidTransition, Status: string(t.Status)}
	}

	next := t.Clone()
	next.Status = models.TicketStatusCancelled
	next.UpdatedAt = e.now().UTC()
	return next, nil
}

// Transfer reassigns the ticket to holder and re-issues the token under
// the next generation, invalidating the previous QR code.
func (e *Engine) Transfer(t models.Ticket, holder models.Holder) (models.Ticket, error) {
	if err := requirePaid(t); err != nil {
		return t, err
	}
	if t.CheckedIn {
		return t, reject(ReasonCheckedIn)
	}
	if strings.TrimSpace(holder.Name) == "" {
		return t, reject(ReasonHolderNameRequired)
	}

	next := t.Clone()
	next.Name = strings.TrimSpace(holder.Name)
	next.Email = holder.Email
	next.Phone = holder.Phone
	next.TokenGeneration = t.TokenGeneration + 1
	next.Token = e.issueToken(&next)
	next.UpdatedAt = e.now().UTC()
	return next, nil
}

func (e *Engine) issueToken(t *models.Ticket) *string {
	tok := e.tokens.DeriveGeneration(t.ID, t.TokenGeneration)
	return &tok
}

func requirePaid(t models.Ticket) error {
	switch t.Status {
	case models.TicketStatusPaid:
		return nil
	case models.TicketStatusPending:
		return reject(ReasonNotPaid)
	case models.TicketStatusRefunded:
		return reject(ReasonRefunded)
	case models.TicketStatusCancelled:
		return reject(ReasonCancelled)
	default:
		return &Rejection{Reason: ReasonInvalidTransition, Status: string(t.Status)}
	}
}
