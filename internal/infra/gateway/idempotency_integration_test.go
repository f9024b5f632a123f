//go:build integration

package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/database"
)

func TestMemcachedIdempotencyStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "memcached:1.6-alpine",
			ExposedPorts: []string{"11211/tcp"},
			WaitingFor:   wait.ForListeningPort("11211/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "11211")
	require.NoError(t, err)

	client, err := database.NewMemcached(fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)
	s := NewMemcachedIdempotencyStore(client)

	_, reserved, err := s.Reserve(ctx, "key", 9, time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)

	rec, reserved, err := s.Reserve(ctx, "key", 9, time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.True(t, rec.Pending())

	require.NoError(t, s.Complete(ctx, "key", domain.IdempotencyRecord{Fingerprint: 9, Status: 200, Body: []byte("ok")}, time.Minute))
	rec, _, err = s.Reserve(ctx, "key", 9, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)
	assert.Equal(t, "ok", string(rec.Body))

	require.NoError(t, s.Release(ctx, "key"))
	require.NoError(t, s.Release(ctx, "key"))
}
