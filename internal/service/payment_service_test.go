package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeySecret     = "checkout-secret"
	testWebhookSecret = "webhook-secret"
)

type fakeGuard struct {
	mu        sync.Mutex
	keys      map[string]bool
	locks     map[string]string
	forgotten []string
	err       error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{keys: map[string]bool{}, locks: map[string]string{}}
}

func (g *fakeGuard) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *fakeGuard) ForgetIdempotencyKey(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	g.forgotten = append(g.forgotten, key)
	return nil
}

func (g *fakeGuard) AcquireLock(_ context.Context, key, owner string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if _, held := g.locks[key]; held {
		return false, nil
	}
	g.locks[key] = owner
	return true, nil
}

func (g *fakeGuard) ReleaseLock(_ context.Context, key, owner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locks[key] == owner {
		delete(g.locks, key)
	}
	return nil
}

func (h *harness) payments(guard IdempotencyGuard) *PaymentService {
	return NewPaymentService(h.stores, h.engine, h.pub, guard, PaymentConfig{
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		LockTTL:       time.Second,
		DedupeTTL:     time.Hour,
	})
}

func webhookBody(t *testing.T, id, event, orderID, paymentID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":    id,
		"event": event,
		"payload": map[string]string{
			"order_id":   orderID,
			"payment_id": paymentID,
		},
	})
	require.NoError(t, err)
	return body
}

func TestVerifyCheckoutConfirmsOnce(t *testing.T) {
	h := newHarness(t)
	priced := h.seedEvent(t, h.primary, "E1", 49900, 10)
	h.seedTicket(t, h.primary, "T1", priced)
	guard := newFakeGuard()
	svc := h.payments(guard)
	ctx := context.Background()

	req := &VerifyCheckoutRequest{
		TicketID:  "T1",
		OrderID:   "order_T1",
		PaymentID: "pay_1",
		Signature: Sign(testKeySecret, []byte("order_T1|pay_1")),
	}

	first, err := svc.VerifyCheckout(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.AlreadyPaid)
	assert.Equal(t, models.TicketStatusPaid, first.Ticket.Status)
	require.NotNil(t, first.Ticket.Token)
	assert.Equal(t, h.tokens.Derive("T1"), *first.Ticket.Token)
	assert.NotEmpty(t, first.QRData)

	stored := h.stored(t, h.primary, "T1")
	assert.Equal(t, models.TicketStatusPaid, stored.Status)
	assert.Equal(t, "pay_1", models.StringValue(stored.ProviderPaymentID))

	second, err := svc.VerifyCheckout(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.AlreadyPaid)
	assert.Equal(t, *first.Ticket.Token, *second.Ticket.Token)

	require.Len(t, h.pub.paid, 1, "repeat confirmation publishes nothing")
	assert.Equal(t, "Event E1", h.pub.paid[0].EventName)
	assert.Equal(t, "pay_1", h.pub.paid[0].ProviderPaymentID)
	assert.Empty(t, guard.locks, "lock released")
}

func TestVerifyCheckoutRejections(t *testing.T) {
	h := newHarness(t)
	priced := h.seedEvent(t, h.primary, "E1", 49900, 10)
	h.seedTicket(t, h.primary, "T1", priced)
	ctx := context.Background()
	svc := h.payments(nil)

	_, err := svc.VerifyCheckout(ctx, &VerifyCheckoutRequest{
		TicketID: "T1", OrderID: "order_T1", PaymentID: "pay_1", Signature: Sign("wrong", []byte("order_T1|pay_1")),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.VerifyCheckout(ctx, &VerifyCheckoutRequest{
		TicketID: "T1", OrderID: "order_T1", PaymentID: "pay_1", Signature: "not-hex",
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.VerifyCheckout(ctx, &VerifyCheckoutRequest{
		TicketID: "T1", OrderID: "order_other", PaymentID: "pay_1", Signature: Sign(testKeySecret, []byte("order_other|pay_1")),
	})
	assert.ErrorIs(t, err, ErrOrderMismatch)

	_, err = svc.VerifyCheckout(ctx, &VerifyCheckoutRequest{TicketID: "T1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	unconfigured := NewPaymentService(h.stores, h.engine, h.pub, nil, PaymentConfig{})
	_, err = unconfigured.VerifyCheckout(ctx, &VerifyCheckoutRequest{TicketID: "T1"})
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)

	assert.Equal(t, models.TicketStatusPending, h.stored(t, h.primary, "T1").Status)
	assert.Empty(t, h.pub.paid)
}

func TestConfirmationLockHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	priced := h.seedEvent(t, h.primary, "E1", 49900, 10)
	h.seedTicket(t, h.primary, "T1", priced)
	guard := newFakeGuard()
	guard.locks["ticket-confirm:T1"] = "other-worker"

	_, err := h.payments(guard).VerifyCheckout(context.Background(), &VerifyCheckoutRequest{
		TicketID: "T1", OrderID: "order_T1", PaymentID: "pay_1", Signature: Sign(testKeySecret, []byte("order_T1|pay_1")),
	})
	assert.ErrorIs(t, err, ErrConfirmationInFlight)
	assert.Equal(t, models.TicketStatusPending, h.stored(t, h.primary, "T1").Status)
}

func TestConfirmationProceedsWhenRedisIsDown(t *testing.T) {
	h := newHarness(t)
	priced := h.seedEvent(t, h.primary, "E1", 49900, 10)
	h.seedTicket(t, h.primary, "T1", priced)
	guard := newFakeGuard()
	guard.err = errBoom

	body := webhookBody(t, "evt_1", "payment.captured", "order_T1", "pay_1")
	res, err := h.payments(guard).HandleWebhook(context.Background(), body, Sign(testWebhookSecret, body))
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Equal(t, "T1", res.TicketID)
	assert.Equal(t, models.TicketStatusPaid, h.stored(t, h.primary, "T1").Status)
}

func TestWebhookDeduplicatesDeliveries(t *testing.T) {
	h := newHarness(t)
	priced := h.seedEvent(t, h.primary, "E1", 49900, 10)
	h.seedTicket(t, h.primary, "T1", priced)
	svc := h.payments(newFakeGuard())
	ctx := context.Background()

	body := webhookBody(t, "evt_1", "payment.captured", "order_T1", "pay_1")
	sig := Sign(testWebhookSecret, body)

	first, err := svc.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.True(t, first.Handled)
	assert.False(t, first.Duplicate)

	again, err := svc.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	// a fresh delivery id for an already paid ticket is still a no-op
	retry := webhookBody(t, "evt_2", "payment.captured", "order_T1", "pay_1")
	_, err = svc.HandleWebhook(ctx, retry, Sign(testWebhookSecret, retry))
	require.NoError(t, err)

	assert.Len(t, h.pub.paid, 1)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	body := webhookBody(t, "evt_9", "payment.failed", "order_T1", "pay_1")

	res, err := h.payments(nil).HandleWebhook(context.Background(), body, Sign(testWebhookSecret, body))
	require.NoError(t, err)
	assert.False(t, res.Handled)
}

func TestWebhookRejections(t *testing.T) {
	h := newHarness(t)
	guard := newFakeGuard()
	svc := h.payments(guard)
	ctx := context.Background()

	body := webhookBody(t, "evt_1", "payment.captured", "order_unknown", "pay_1")
	_, err := svc.HandleWebhook(ctx, body, Sign("other-secret", body))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.HandleWebhook(ctx, body, Sign(testWebhookSecret, body))
	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.Equal(t, []string{"webhook:evt_1"}, guard.forgotten, "failed delivery can be retried")

	junk := []byte("not json")
	_, err = svc.HandleWebhook(ctx, junk, Sign(testWebhookSecret, junk))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestConfirmRefusedForCancelledTicket(t *testing.T) {
	h := newHarness(t)
	priced := h.seedEvent(t, h.primary, "E1", 49900, 10)
	h.seedTicket(t, h.primary, "T1", priced)
	ctx := context.Background()

	_, err := h.tickets().Cancel(ctx, "T1")
	require.NoError(t, err)

	_, err = h.payments(nil).VerifyCheckout(ctx, &VerifyCheckoutRequest{
		TicketID: "T1", OrderID: "order_T1", PaymentID: "pay_1", Signature: Sign(testKeySecret, []byte("order_T1|pay_1")),
	})
	var rej *lifecycle.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, lifecycle.ReasonCancelled, rej.Reason)
	assert.Empty(t, h.pub.paid)
}
