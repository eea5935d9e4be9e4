package service

import (
	"context"
	"testing"

	"ticketing-service/internal/fallback"
	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/models"
	"ticketing-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInScenarios(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	free := h.seedEvent(t, h.primary, "E1", 0, 100)
	priced := h.seedEvent(t, h.primary, "E2", 49900, 100)

	t1 := h.seedTicket(t, h.primary, "T1", free)
	h.seedTicket(t, h.primary, "T2", priced)
	h.seedTicket(t, h.primary, "T3", free)
	svc := h.checkIns(false)

	t.Run("A paid ticket with correct token is admitted", func(t *testing.T) {
		res, err := svc.CheckIn(ctx, ScanPayload{TicketID: "T1", Token: *t1.Token})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "Check-in successful", res.Message)
		require.NotNil(t, res.Ticket)
		assert.Equal(t, "Asha Rao", res.Ticket.Name)
		assert.Equal(t, "Event E1", res.Ticket.EventName)
		assert.Equal(t, "asha@example.com", res.Ticket.Email)
		assert.True(t, res.Ticket.CheckedIn)

		stored := h.stored(t, h.primary, "T1")
		assert.True(t, stored.CheckedIn)
		require.NotNil(t, stored.CheckedInAt)
		assert.Equal(t, testNow, *stored.CheckedInAt)
	})

	t.Run("B repeat scan reports the original check-in time", func(t *testing.T) {
		res, err := svc.CheckIn(ctx, ScanPayload{TicketID: "T1", Token: *t1.Token})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "Already checked in at 2026-06-01T19:00:00Z", res.Message)
		assert.Equal(t, string(lifecycle.ReasonAlreadyCheckedIn), res.Reason)
		require.NotNil(t, res.CheckedInAt)
		assert.Equal(t, testNow, *res.CheckedInAt)
	})

	t.Run("C pending ticket is refused whatever the token", func(t *testing.T) {
		res, err := svc.CheckIn(ctx, ScanPayload{TicketID: "T2", Token: "anything"})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "Ticket not paid", res.Message)
		assert.False(t, h.stored(t, h.primary, "T2").CheckedIn)
	})

	t.Run("D wrong token is an authentication failure", func(t *testing.T) {
		_, err := svc.CheckIn(ctx, ScanPayload{TicketID: "T3", Token: "deadbeef"})
		assert.ErrorIs(t, err, ErrInvalidToken)
		stored := h.stored(t, h.primary, "T3")
		assert.False(t, stored.CheckedIn)
		assert.Nil(t, stored.CheckedInAt)
	})

	t.Run("E unknown ticket", func(t *testing.T) {
		_, err := svc.CheckIn(ctx, ScanPayload{TicketID: "does-not-exist", Token: "abc"})
		assert.ErrorIs(t, err, ErrTicketNotFound)
	})

	t.Run("F undo allows a new check-in", func(t *testing.T) {
		undone, err := h.tickets().UndoCheckIn(ctx, "T1")
		require.NoError(t, err)
		assert.False(t, undone.CheckedIn)
		assert.Nil(t, undone.CheckedInAt)

		stored := h.stored(t, h.primary, "T1")
		assert.False(t, stored.CheckedIn)
		assert.Nil(t, stored.CheckedInAt)

		res, err := svc.CheckIn(ctx, ScanPayload{TicketID: "T1", Token: *t1.Token})
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	assert.Equal(t, []string{
		models.EventTypeTicketCheckedIn,
		models.EventTypeTicketCheckInUndone,
		models.EventTypeTicketCheckedIn,
	}, h.pub.changedTypes())
}

func TestCheckInRejectsTerminalStatuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	free := h.seedEvent(t, h.primary, "E1", 0, 10)

	refunded := h.seedTicket(t, h.primary, "R1", free)
	_, err := h.tickets().Refund(ctx, "R1")
	require.NoError(t, err)

	res, err := h.checkIns(false).CheckIn(ctx, ScanPayload{TicketID: "R1", Token: *refunded.Token})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Ticket has been refunded", res.Message)
	assert.False(t, h.stored(t, h.primary, "R1").CheckedIn)
}

func TestCheckInWrongEvent(t *testing.T) {
	h := newHarness(t)
	free := h.seedEvent(t, h.primary, "E1", 0, 10)
	tk := h.seedTicket(t, h.primary, "T1", free)

	res, err := h.checkIns(false).CheckIn(context.Background(),
		ScanPayload{TicketID: "T1", Token: *tk.Token, EventID: "E-other"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Ticket is for a different event", res.Message)
}

func TestCheckInInvalidPayload(t *testing.T) {
	h := newHarness(t)
	_, err := h.checkIns(false).CheckIn(context.Background(), ScanPayload{TicketID: "T1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckInFallsBackWhenPersistentStoreIsDown(t *testing.T) {
	h := newHarnessWith(t, store.Disconnected())
	free := h.seedEvent(t, h.fallback, "E1", 0, 10)
	tk := h.seedTicket(t, h.fallback, "T1", free)

	res, err := h.checkIns(false).CheckIn(context.Background(), ScanPayload{TicketID: "T1", Token: *tk.Token})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Event E1", res.Ticket.EventName)

	stored, ok := h.fallback.Get("T1")
	require.True(t, ok)
	assert.True(t, stored.CheckedIn)
}

func TestCheckInFallsBackWhenPersistentStoreLacksTicket(t *testing.T) {
	h := newHarness(t)
	free := h.seedEvent(t, h.fallback, "E1", 0, 10)
	tk := h.seedTicket(t, h.fallback, "T1", free)

	res, err := h.checkIns(false).CheckIn(context.Background(), ScanPayload{TicketID: "T1", Token: *tk.Token})
	require.NoError(t, err)
	assert.True(t, res.Success)

	stored, _ := h.fallback.Get("T1")
	assert.True(t, stored.CheckedIn, "write goes to the store the ticket came from")
	assert.Equal(t, store.NotFound, h.primary.FindTicketByID(context.Background(), "T1").Result)
}

// eventReadCounter counts event reads against one store.
type eventReadCounter struct {
	*fallback.Store
	eventReads int
}

func (c *eventReadCounter) GetEvent(ctx context.Context, id string) store.Lookup[models.Event] {
	c.eventReads++
	return c.Store.GetEvent(ctx, id)
}

func TestCheckInReadsEventNameOnlyFromOwningStore(t *testing.T) {
	h := newHarness(t)
	primary := &eventReadCounter{Store: fallback.NewStore()}
	fb := &eventReadCounter{Store: h.fallback}
	h.stores = NewStores(primary, fb)

	free := h.seedEvent(t, h.fallback, "E1", 0, 10)
	t1 := h.seedTicket(t, h.fallback, "T1", free)
	t2 := h.seedTicket(t, h.fallback, "T2", free)
	svc := h.checkIns(false)
	ctx := context.Background()

	res, err := svc.CheckIn(ctx, ScanPayload{TicketID: "T1", Token: *t1.Token})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Event E1", res.Ticket.EventName)

	res, err = svc.CheckIn(ctx, ScanPayload{TicketID: "T2", Token: *t2.Token})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Event E1", res.Ticket.EventName)

	assert.Zero(t, primary.eventReads)
	assert.Equal(t, 1, fb.eventReads, "the name is cached after the first read")
}

func TestCheckInBothStoresUnavailable(t *testing.T) {
	h := newHarness(t)
	h.stores = NewStores(store.Disconnected(), store.Disconnected())

	_, err := h.checkIns(false).CheckIn(context.Background(), ScanPayload{TicketID: "T1", Token: "abc"})
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestCheckInAfterTransferRequiresNewToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	free := h.seedEvent(t, h.primary, "E1", 0, 10)
	old := h.seedTicket(t, h.primary, "T1", free)

	_, qr, err := h.tickets().Transfer(ctx, "T1", &HolderRequest{Name: "Ravi Menon"})
	require.NoError(t, err)

	_, err = h.checkIns(false).CheckIn(ctx, ScanPayload{TicketID: "T1", Token: *old.Token})
	assert.ErrorIs(t, err, ErrInvalidToken)

	p, err := ParseScanPayload([]byte(qr))
	require.NoError(t, err)
	res, err := h.checkIns(false).CheckIn(ctx, p)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Ravi Menon", res.Ticket.Name)
}

func TestConditionalCheckInLosesRace(t *testing.T) {
	primary := &staleStore{Store: fallback.NewStore()}
	h := newHarnessWith(t, primary)
	ctx := context.Background()
	free := h.seedEvent(t, primary, "E1", 0, 10)
	tk := h.seedTicket(t, primary, "T1", free)

	// another device admitted the ticket after this one read it
	primary.stale = &tk
	admitted, err := h.engine.CheckIn(tk, "")
	require.NoError(t, err)
	require.NoError(t, primary.UpdateCheckedIn(ctx, &admitted, false))

	res, err := h.checkIns(true).CheckIn(ctx, ScanPayload{TicketID: "T1", Token: *tk.Token})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, string(lifecycle.ReasonAlreadyCheckedIn), res.Reason)
	assert.Equal(t, "Already checked in at 2026-06-01T19:00:00Z", res.Message)
	assert.Empty(t, h.pub.changedTypes())
}

func TestCheckInPublishFailureDoesNotFailCheckIn(t *testing.T) {
	h := newHarness(t)
	h.pub.err = errBoom
	free := h.seedEvent(t, h.primary, "E1", 0, 10)
	tk := h.seedTicket(t, h.primary, "T1", free)

	res, err := h.checkIns(false).CheckIn(context.Background(), ScanPayload{TicketID: "T1", Token: *tk.Token})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerifyHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	free := h.seedEvent(t, h.primary, "E1", 0, 10)
	tk := h.seedTicket(t, h.primary, "T1", free)
	svc := h.checkIns(false)

	res, err := svc.Verify(ctx, "T1", *tk.Token, "")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.CanCheckIn)
	assert.Equal(t, "Asha Rao", res.Ticket.Name)
	assert.Equal(t, "Event E1", res.Ticket.EventName)
	assert.Equal(t, "paid", res.Ticket.Status)

	byToken, err := svc.Verify(ctx, "", *tk.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "T1", byToken.Ticket.ID)

	assert.False(t, h.stored(t, h.primary, "T1").CheckedIn)
	assert.Empty(t, h.pub.changedTypes())
}

func TestVerifyReportsWhyEntryWouldFail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	free := h.seedEvent(t, h.primary, "E1", 0, 10)
	priced := h.seedEvent(t, h.primary, "E2", 1500, 10)
	tk := h.seedTicket(t, h.primary, "T1", free)
	h.seedTicket(t, h.primary, "P1", priced)
	svc := h.checkIns(false)

	_, err := svc.CheckIn(ctx, ScanPayload{TicketID: "T1", Token: *tk.Token})
	require.NoError(t, err)

	res, err := svc.Verify(ctx, "T1", *tk.Token, "")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.False(t, res.CanCheckIn)
	assert.Equal(t, "Already checked in at 2026-06-01T19:00:00Z", res.Message)
	assert.True(t, res.Ticket.CheckedIn)
	require.NotNil(t, res.Ticket.CheckedInAt)

	pending, err := svc.Verify(ctx, "P1", "whatever", "")
	require.NoError(t, err)
	assert.False(t, pending.Valid)
	assert.False(t, pending.CanCheckIn)
	assert.Equal(t, "Ticket not paid", pending.Message)

	_, err = svc.Verify(ctx, "T1", "0000", "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify(ctx, "T1", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Verify(ctx, "", "unknown-token", "")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}
