package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
)

func TestCacheIdempotencyStoreLifecycle(t *testing.T) {
	s := NewCacheIdempotencyStore(time.Minute)
	ctx := context.Background()

	rec, reserved, err := s.Reserve(ctx, "k1", 42, time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.True(t, rec.Pending())

	rec, reserved, err = s.Reserve(ctx, "k1", 42, time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.True(t, rec.Pending())

	require.NoError(t, s.Complete(ctx, "k1", domain.IdempotencyRecord{
		Fingerprint: 42, Status: 201, ContentType: "application/json", Body: []byte(`{"id":"x"}`),
	}, time.Minute))

	rec, reserved, err = s.Reserve(ctx, "k1", 42, time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, `{"id":"x"}`, string(rec.Body))

	require.NoError(t, s.Release(ctx, "k1"))
	_, reserved, err = s.Reserve(ctx, "k1", 7, time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestCacheIdempotencyStoreExpires(t *testing.T) {
	s := NewCacheIdempotencyStore(time.Minute)
	ctx := context.Background()

	_, reserved, err := s.Reserve(ctx, "k", 1, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, reserved)

	time.Sleep(20 * time.Millisecond)
	_, reserved, err = s.Reserve(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestExpirationRoundsUpToOneSecond(t *testing.T) {
	assert.Equal(t, int32(1), expiration(10*time.Millisecond))
	assert.Equal(t, int32(90), expiration(90*time.Second))
}
