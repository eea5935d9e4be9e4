package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)
	ctx := context.Background()

	mock.ExpectSetNX("lock:confirm:T1", "owner-1", 10*time.Second).SetVal(true)
	mock.ExpectSetNX("lock:confirm:T1", "owner-2", 10*time.Second).SetVal(false)

	ok, err := c.AcquireLock(ctx, "confirm:T1", "owner-1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "confirm:T1", "owner-2", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseLockRunsScript(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectEvalSha(c.releaseScript.Hash(), []string{"lock:confirm:T1"}, "owner-1").SetVal(int64(1))

	require.NoError(t, c.ReleaseLock(context.Background(), "confirm:T1", "owner-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForgetIdempotencyKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectDel("idempotency:evt_1").SetVal(1)

	require.NoError(t, c.ForgetIdempotencyKey(context.Background(), "evt_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectPing().SetErr(errors.New("connection refused"))

	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimIdempotencyKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)
	ctx := context.Background()

	mock.ExpectSetNX("idempotency:evt_1", "1", time.Hour).SetVal(true)
	mock.ExpectSetNX("idempotency:evt_1", "1", time.Hour).SetVal(false)
	mock.ExpectSetNX("idempotency:evt_2", "1", time.Hour).SetErr(errors.New("timeout"))

	first, err := c.ClaimIdempotencyKey(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.ClaimIdempotencyKey(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	_, err = c.ClaimIdempotencyKey(ctx, "evt_2", time.Hour)
	assert.ErrorContains(t, err, "claim idempotency key")
	assert.NoError(t, mock.ExpectationsWereMet())
}
