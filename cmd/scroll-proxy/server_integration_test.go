//go:build integration

package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/eve-esi-scroll/internal/testutil"
	"github.com/Sternrassler/eve-esi-scroll/pkg/persist"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisC.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})

	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}
	return redisClient, cleanup
}

// TestSessionRestoredByAnotherReplica creates a session on one server and
// continues it on a second server sharing the same Redis.
func TestSessionRestoredByAnotherReplica(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.ServePages(ordersPath, testutil.Items(25), 10)

	store := persist.NewStore[Item](redisClient, "proxy-test", time.Minute)
	a := newTestServer(t, mock, "page", store)
	b := newTestServer(t, mock, "page", store)

	_, s := do(t, http.MethodPost, a.URL+"/sessions")
	do(t, http.MethodPost, a.URL+"/sessions/"+s.ID+"/more")

	resp, s := do(t, http.MethodGet, b.URL+"/sessions/"+s.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replica get status = %d, want 200", resp.StatusCode)
	}
	if len(s.Items) != 20 || s.Status != "ready" {
		t.Fatalf("restored items=%d status=%s, want 20 ready", len(s.Items), s.Status)
	}

	_, s = do(t, http.MethodPost, b.URL+"/sessions/"+s.ID+"/more")
	if len(s.Items) != 25 || s.HasMore {
		t.Errorf("after more on replica: items=%d has_more=%v", len(s.Items), s.HasMore)
	}

	resp, _ = do(t, http.MethodDelete, b.URL+"/sessions/"+s.ID)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	if _, err := store.Load(context.Background(), s.ID); err == nil {
		t.Error("snapshot should be gone after delete")
	}
}
