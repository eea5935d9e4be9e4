package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdempotencyGuard is implemented by redisclient.Client.
type IdempotencyGuard interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ForgetIdempotencyKey(ctx context.Context, key string) error
	AcquireLock(ctx context.Context, lockKey, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, owner string) error
}

type PaymentConfig struct {
	KeySecret     string
	WebhookSecret string
	LockTTL       time.Duration
	DedupeTTL     time.Duration
}

// PaymentService confirms gateway payments. The gateway itself is mocked:
// checkout and webhook signatures are checked, money never moves here.
type PaymentService struct {
	stores    *Stores
	engine    *lifecycle.Engine
	publisher EventPublisher
	guard     IdempotencyGuard
	cfg       PaymentConfig
	logger    *zap.Logger
}

// NewPaymentService accepts a nil guard; confirmations then run without
// webhook deduplication or locking.
func NewPaymentService(stores *Stores, engine *lifecycle.Engine, publisher EventPublisher, guard IdempotencyGuard, cfg PaymentConfig) *PaymentService {
	return &PaymentService{
		stores:    stores,
		engine:    engine,
		publisher: publisher,
		guard:     guard,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

type VerifyCheckoutRequest struct {
	TicketID  string `json:"ticket_id" binding:"required"`
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type ConfirmResult struct {
	Ticket      *models.Ticket `json:"ticket"`
	AlreadyPaid bool           `json:"already_paid"`
	QRData      string         `json:"qr_data,omitempty"`
}

type WebhookResult struct {
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate,omitempty"`
	TicketID  string `json:"ticket_id,omitempty"`
}

type webhookEvent struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
	} `json:"payload"`
}

const webhookPaymentCaptured = "payment.captured"

// Sign returns the hex HMAC-SHA256 of message under secret, the format the
// gateway uses for checkout and webhook signatures.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, message []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, message))
	return hmac.Equal(got, want)
}

func checkoutMessage(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// VerifyCheckout confirms a ticket from the hosted checkout callback.
func (s *PaymentService) VerifyCheckout(ctx context.Context, req *VerifyCheckoutRequest) (*ConfirmResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyCheckout")
	defer span.End()

	if s.cfg.KeySecret == "" {
		return nil, ErrGatewayNotConfigured
	}
	if req.TicketID == "" || req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, fmt.Errorf("%w: ticket_id, order_id, payment_id and signature are required", ErrInvalidInput)
	}
	if !validSignature(s.cfg.KeySecret, checkoutMessage(req.OrderID, req.PaymentID), req.Signature) {
		util.SignatureFailuresTotal.WithLabelValues("checkout").Inc()
		s.logger.Warn("Checkout signature mismatch",
			zap.String("ticket_id", req.TicketID),
			zap.String("order_id", req.OrderID))
		return nil, ErrInvalidSignature
	}

	found, err := s.stores.ticketByID(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if models.StringValue(found.value.ProviderOrderID) != req.OrderID {
		return nil, ErrOrderMismatch
	}

	return s.confirm(ctx, req.TicketID, lifecycle.PaymentRef{OrderID: req.OrderID, PaymentID: req.PaymentID})
}

// HandleWebhook processes a signed gateway notification. Only captured
// payments change state; other event types are acknowledged.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	if s.cfg.WebhookSecret == "" {
		return nil, ErrGatewayNotConfigured
	}
	if !validSignature(s.cfg.WebhookSecret, body, signature) {
		util.SignatureFailuresTotal.WithLabelValues("webhook").Inc()
		s.logger.Warn("Webhook signature mismatch")
		return nil, ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if event.Event != webhookPaymentCaptured {
		s.logger.Info("Ignoring webhook event", zap.String("event", event.Event))
		return &WebhookResult{Handled: false}, nil
	}
	if event.Payload.OrderID == "" {
		return nil, fmt.Errorf("%w: order_id is required", ErrInvalidInput)
	}

	dedupeKey := ""
	if s.guard != nil && event.ID != "" {
		claimed, err := s.guard.ClaimIdempotencyKey(ctx, "webhook:"+event.ID, s.cfg.DedupeTTL)
		switch {
		case err != nil:
			s.logger.Warn("Webhook deduplication unavailable", zap.String("webhook_id", event.ID), zap.Error(err))
		case !claimed:
			util.PaymentConfirmationsTotal.WithLabelValues("duplicate_webhook").Inc()
			s.logger.Info("Duplicate webhook delivery", zap.String("webhook_id", event.ID))
			return &WebhookResult{Handled: true, Duplicate: true}, nil
		default:
			dedupeKey = "webhook:" + event.ID
		}
	}

	result, err := s.confirmOrder(ctx, event.Payload.OrderID, event.Payload.PaymentID)
	if err != nil {
		// let the gateway retry
		if dedupeKey != "" {
			if ferr := s.guard.ForgetIdempotencyKey(ctx, dedupeKey); ferr != nil {
				s.logger.Warn("Failed to release webhook key", zap.String("key", dedupeKey), zap.Error(ferr))
			}
		}
		return nil, err
	}
	return &WebhookResult{Handled: true, TicketID: result.Ticket.ID}, nil
}

func (s *PaymentService) confirmOrder(ctx context.Context, orderID, paymentID string) (*ConfirmResult, error) {
	found, err := s.stores.ticketByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, found.value.ID, lifecycle.PaymentRef{OrderID: orderID, PaymentID: paymentID})
}

// confirm runs the pending → paid transition under a short per-ticket lock.
// The ticket is re-read after the lock is held so a concurrent retry sees
// the confirmed state.
func (s *PaymentService) confirm(ctx context.Context, ticketID string, ref lifecycle.PaymentRef) (*ConfirmResult, error) {
	if s.guard != nil {
		lockKey := "ticket-confirm:" + ticketID
		owner := uuid.New().String()
		acquired, err := s.guard.AcquireLock(ctx, lockKey, owner, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger.Warn("Confirmation lock unavailable, proceeding without it",
				zap.String("ticket_id", ticketID),
				zap.Error(err))
		case !acquired:
			return nil, ErrConfirmationInFlight
		default:
			defer func() {
				if err := s.guard.ReleaseLock(ctx, lockKey, owner); err != nil {
					s.logger.Warn("Failed to release confirmation lock", zap.String("ticket_id", ticketID), zap.Error(err))
				}
			}()
		}
	}

	found, err := s.stores.ticketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	next, changed, err := s.engine.ConfirmPayment(found.value, ref)
	if err != nil {
		util.PaymentConfirmationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if !changed {
		util.PaymentConfirmationsTotal.WithLabelValues("already_paid").Inc()
		s.logger.Info("Payment already confirmed", zap.String("ticket_id", ticketID))
		return &ConfirmResult{Ticket: &next, AlreadyPaid: true, QRData: QRPayload(&next)}, nil
	}

	if err := found.owner.UpdateStatus(ctx, &next); err != nil {
		util.PaymentConfirmationsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Failed to persist payment confirmation",
			zap.String("ticket_id", ticketID),
			zap.String("store", found.source),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	util.PaymentConfirmationsTotal.WithLabelValues("confirmed").Inc()
	util.TicketsPaidTotal.Inc()
	s.logger.Info("Payment confirmed",
		zap.String("ticket_id", ticketID),
		zap.String("payment_id", ref.PaymentID))

	publishPaid(ctx, s.logger, s.publisher, &next, s.stores.eventName(ctx, found.owner, next.EventID))
	return &ConfirmResult{Ticket: &next, QRData: QRPayload(&next)}, nil
}
