package repository

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisTokenStore(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	store := NewRedisTokenStore(client)

	token := domain.NewImportToken("ROOM01", "p1", "s1", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, store.Put(ctx, token, time.Minute))

	ttl, err := client.TTL(ctx, importTokenPrefix+token.Token).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, err := store.Take(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, token.RoomCode, got.RoomCode)
	assert.Equal(t, token.PlayerID, got.PlayerID)
	assert.True(t, token.CreatedAt.Equal(got.CreatedAt))

	_, err = store.Take(ctx, token.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
