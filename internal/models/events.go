package models

import "time"

// Event types
const (
	EventTypeTicketPaid          = "TICKET_PAID"
	EventTypeTicketCheckedIn     = "TICKET_CHECKED_IN"
	EventTypeTicketCheckInUndone = "TICKET_CHECKIN_UNDONE"
	EventTypeTicketRefunded      = "TICKET_REFUNDED"
	EventTypeTicketTransferred   = "TICKET_TRANSFERRED"
	EventTypeTicketCancelled     = "TICKET_CANCELLED"
)

// BaseEvent contains common fields for all domain events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketPaidEvent drives the purchase notifications.
type TicketPaidEvent struct {
	BaseEvent
	TicketID          string `json:"ticket_id"`
	EventRef          string `json:"event_ref"`
	EventName         string `json:"event_name"`
	HolderName        string `json:"holder_name"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Token             string `json:"token"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
}

// TicketChangedEvent records any other lifecycle transition.
type TicketChangedEvent struct {
	BaseEvent
	TicketID    string     `json:"ticket_id"`
	EventRef    string     `json:"event_ref"`
	Status      string     `json:"status"`
	CheckedIn   bool       `json:"checked_in"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	HolderName  string     `json:"holder_name"`
}
