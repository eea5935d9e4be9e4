package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// TokenVerifier is implemented by token.Service.
type TokenVerifier interface {
	VerifyGeneration(ticketID string, generation int, candidate string) bool
}

// CheckInService turns a scanned payload into an admission decision.
type CheckInService struct {
	stores      *Stores
	engine      *lifecycle.Engine
	tokens      TokenVerifier
	publisher   EventPublisher
	conditional bool
	logger      *zap.Logger
}

// NewCheckInService builds the check-in gate. With conditional set, the
// admission write only succeeds while the stored ticket is not yet
// checked in, so two devices scanning the same code admit once.
func NewCheckInService(stores *Stores, engine *lifecycle.Engine, tokens TokenVerifier, publisher EventPublisher, conditional bool) *CheckInService {
	return &CheckInService{
		stores:      stores,
		engine:      engine,
		tokens:      tokens,
		publisher:   publisher,
		conditional: conditional,
		logger:      util.GetLogger(),
	}
}

// Attendee is the ticket as shown on the scanning device.
type Attendee struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	EventID     string     `json:"eventId"`
	EventName   string     `json:"eventName,omitempty"`
	Status      string     `json:"status"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
}

type CheckInResult struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	Reason      string     `json:"reason,omitempty"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	Ticket      *Attendee  `json:"ticket,omitempty"`
}

type VerifyResult struct {
	Valid      bool      `json:"valid"`
	CanCheckIn bool      `json:"canCheckIn"`
	Message    string    `json:"message"`
	Ticket     *Attendee `json:"ticket"`
}

const checkInSuccessMessage = "Check-in successful"

func attendee(t *models.Ticket, eventName string) *Attendee {
	return &Attendee{
		ID:          t.ID,
		Name:        t.Name,
		Email:       models.StringValue(t.Email),
		EventID:     t.EventID,
		EventName:   eventName,
		Status:      string(t.Status),
		CheckedIn:   t.CheckedIn,
		CheckedInAt: t.CheckedInAt,
	}
}

// CheckIn admits the ticket holder. Business-rule refusals come back as a
// result with Success=false and a nil error; only input, token, lookup and
// store failures are errors.
func (s *CheckInService) CheckIn(ctx context.Context, p ScanPayload) (*CheckInResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckInService.CheckIn")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckInLatency.Observe(time.Since(start).Seconds())
	}()

	if err := p.validate(); err != nil {
		util.CheckInsTotal.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	found, err := s.stores.ticketByID(ctx, p.TicketID)
	if err != nil {
		util.CheckInsTotal.WithLabelValues(outcomeForError(err)).Inc()
		return nil, err
	}

	if err := s.authenticate(&found.value, p.Token); err != nil {
		util.CheckInsTotal.WithLabelValues("invalid_token").Inc()
		return nil, err
	}

	next, err := s.engine.CheckIn(found.value, p.EventID)
	if err != nil {
		return s.rejected(ctx, found.owner, &found.value, err)
	}

	if err := found.owner.UpdateCheckedIn(ctx, &next, s.conditional); err != nil {
		if errors.Is(err, store.ErrCheckInConflict) {
			return s.lostRace(ctx, found)
		}
		util.CheckInsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Failed to persist check-in",
			zap.String("ticket_id", next.ID),
			zap.String("store", found.source),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	util.CheckInsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Ticket checked in",
		zap.String("ticket_id", next.ID),
		zap.String("event_id", next.EventID),
		zap.String("store", found.source))
	publishChanged(ctx, s.logger, s.publisher, models.EventTypeTicketCheckedIn, &next)

	return &CheckInResult{
		Success:     true,
		Message:     checkInSuccessMessage,
		CheckedInAt: next.CheckedInAt,
		Ticket:      attendee(&next, s.stores.eventName(ctx, found.owner, next.EventID)),
	}, nil
}

// Verify previews a scan without changing anything. When ticketID is empty
// the ticket is looked up by its token.
func (s *CheckInService) Verify(ctx context.Context, ticketID, token, eventID string) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckInService.Verify")
	defer span.End()

	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}

	var (
		found *located[models.Ticket]
		err   error
	)
	if ticketID != "" {
		found, err = s.stores.ticketByID(ctx, ticketID)
	} else {
		found, err = s.stores.ticketByToken(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	if err := s.authenticate(&found.value, token); err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Valid:      found.value.Token != nil,
		CanCheckIn: true,
		Message:    "Ticket is valid",
		Ticket:     attendee(&found.value, s.stores.eventName(ctx, found.owner, found.value.EventID)),
	}
	if _, err := s.engine.CheckIn(found.value, eventID); err != nil {
		var rej *lifecycle.Rejection
		if !errors.As(err, &rej) {
			return nil, err
		}
		result.CanCheckIn = false
		result.Message = rej.Message()
	}
	return result, nil
}

// authenticate checks the candidate token against the ticket's current
// issuance. A ticket that was never issued a token has nothing to check;
// the lifecycle refuses it on status.
func (s *CheckInService) authenticate(t *models.Ticket, candidate string) error {
	if t.Token == nil && t.Status != models.TicketStatusPaid {
		return nil
	}
	if t.Token != nil && s.tokens.VerifyGeneration(t.ID, t.TokenGeneration, candidate) {
		return nil
	}
	util.SignatureFailuresTotal.WithLabelValues("ticket_token").Inc()
	s.logger.Warn("Ticket token failed verification", zap.String("ticket_id", t.ID))
	return ErrInvalidToken
}

func (s *CheckInService) rejected(ctx context.Context, owner TicketStore, t *models.Ticket, err error) (*CheckInResult, error) {
	var rej *lifecycle.Rejection
	if !errors.As(err, &rej) {
		return nil, err
	}

	util.CheckInsTotal.WithLabelValues(string(rej.Reason)).Inc()
	s.logger.Info("Check-in refused",
		zap.String("ticket_id", t.ID),
		zap.String("reason", string(rej.Reason)))

	return &CheckInResult{
		Success:     false,
		Message:     rej.Message(),
		Reason:      string(rej.Reason),
		CheckedInAt: rej.CheckedInAt,
		Ticket:      attendee(t, s.stores.eventName(ctx, owner, t.EventID)),
	}, nil
}

// lostRace reports a conditional write that found the ticket already
// admitted by another device.
func (s *CheckInService) lostRace(ctx context.Context, found *located[models.Ticket]) (*CheckInResult, error) {
	current := found.value
	if l := found.owner.FindTicketByID(ctx, current.ID); l.Result == store.Found {
		current = *l.Value
	}
	return s.rejected(ctx, found.owner, &current, &lifecycle.Rejection{
		Reason:      lifecycle.ReasonAlreadyCheckedIn,
		CheckedInAt: current.CheckedInAt,
	})
}

func outcomeForError(err error) string {
	switch {
	case errors.Is(err, ErrTicketNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreFailure):
		return "store_unavailable"
	default:
		return "error"
	}
}
