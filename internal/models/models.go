package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a scheduled occasion tickets are sold for. Price is in minor
// currency units (paise).
type Event struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	Venue     string    `db:"venue" json:"venue"`
	Price     int64     `db:"price" json:"price"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Sold      int       `db:"sold" json:"sold"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PriceDisplay renders the price in major units with two decimals.
func (e *Event) PriceDisplay() string {
	return decimal.New(e.Price, -2).StringFixed(2)
}

func (e *Event) IsFree() bool { return e.Price == 0 }

func (e *Event) SoldOut() bool { return e.Sold >= e.Capacity }

type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusPaid      TicketStatus = "paid"
	TicketStatusRefunded  TicketStatus = "refunded"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Ticket is a single admission. Token is set once the ticket is paid and
// TokenGeneration counts the transfers that re-issued it.
type Ticket struct {
	ID                string       `db:"id" json:"id"`
	EventID           string       `db:"event_id" json:"event_id"`
	Name              string       `db:"name" json:"name"`
	Email             *string      `db:"email" json:"email,omitempty"`
	Phone             *string      `db:"phone" json:"phone,omitempty"`
	Status            TicketStatus `db:"status" json:"status"`
	CheckedIn         bool         `db:"checked_in" json:"checked_in"`
	CheckedInAt       *time.Time   `db:"checked_in_at" json:"checked_in_at,omitempty"`
	Token             *string      `db:"token" json:"-"`
	TokenGeneration   int          `db:"token_generation" json:"-"`
	ProviderOrderID   *string      `db:"provider_order_id" json:"provider_order_id,omitempty"`
	ProviderPaymentID *string      `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// Holder is the identity a ticket is issued to.
type Holder struct {
	Name  string
	Email *string
	Phone *string
}

// Clone returns a deep copy so transitions never alias the input.
func (t Ticket) Clone() Ticket {
	out := t
	out.Email = cloneString(t.Email)
	out.Phone = cloneString(t.Phone)
	out.Token = cloneString(t.Token)
	out.ProviderOrderID = cloneString(t.ProviderOrderID)
	out.ProviderPaymentID = cloneString(t.ProviderPaymentID)
	if t.CheckedInAt != nil {
		at := *t.CheckedInAt
		out.CheckedInAt = &at
	}
	return out
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
