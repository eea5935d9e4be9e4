package lifecycle

import (
	"fmt"
	"time"
)

// Reason identifies why a transition was refused.
type Reason string

const (
	ReasonNotPaid            Reason = "not_paid"
	ReasonRefunded           Reason = "refunded"
	ReasonCancelled          Reason = "cancelled"
	ReasonAlreadyCheckedIn   Reason = "already_checked_in"
	ReasonNotCheckedIn       Reason = "not_checked_in"
	ReasonCheckedIn          Reason = "checked_in"
	ReasonWrongEvent         Reason = "wrong_event"
	ReasonInvalidTransition  Reason = "invalid_transition"
	ReasonHolderNameRequired Reason = "holder_name_required"
)

var messages = map[Reason]string{
	ReasonNotPaid:            "Ticket not paid",
	ReasonRefunded:           "Ticket has been refunded",
	ReasonCancelled:          "Ticket has been cancelled",
	ReasonAlreadyCheckedIn:   "Already checked in",
	ReasonNotCheckedIn:       "Ticket is not checked in",
	ReasonCheckedIn:          "Ticket has already been used for entry",
	ReasonWrongEvent:         "Ticket is for a different event",
	ReasonInvalidTransition:  "Transition not allowed from current status",
	ReasonHolderNameRequired: "New holder name is required",
}

// Rejection is a business-rule refusal. It is an expected outcome, not an
// infrastructure failure.
type Rejection struct {
	Reason      Reason
	Status      string
	CheckedInAt *time.Time
}

func (r *Rejection) Error() string {
	msg := r.Message()
	if r.Reason == ReasonInvalidTransition && r.Status != "" {
		return fmt.Sprintf("%s (%s)", msg, r.Status)
	}
	return msg
}

// Message is the staff-facing text. A duplicate scan carries the original
// check-in time.
func (r *Rejection) Message() string {
	msg, ok := messages[r.Reason]
	if !ok {
		msg = string(r.Reason)
	}
	if r.Reason == ReasonAlreadyCheckedIn && r.CheckedInAt != nil {
		return fmt.Sprintf("%s at %s", msg, r.CheckedInAt.UTC().Format(time.RFC3339))
	}
	return msg
}

func reject(reason Reason) *Rejection {
	return &Rejection{Reason: reason}
}
