package redis_test

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	redisadapter "github.com/robertarktes/cinema-seat-booking/internal/adapters/redis"
	"github.com/robertarktes/cinema-seat-booking/internal/idempotency"
)

func TestIdempotency_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	addr, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := redisclient.NewClient(&redisclient.Options{Addr: addr})
	defer client.Close()

	store := redisadapter.NewIdempotency(client)
	if err := store.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	resp, err := store.Get(ctx, "missing")
	if err != nil || resp != nil {
		t.Fatalf("expected miss, got %v %v", resp, err)
	}

	err = store.Set(ctx, "booking-1", idempotency.Response{Status: 200, Result: []byte(`{"room":"Gold"}`)}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = store.Get(ctx, "booking-1")
	if err != nil || resp == nil {
		t.Fatalf("expected hit, got %v %v", resp, err)
	}
	if resp.Status != 200 || string(resp.Result) != `{"room":"Gold"}` {
		t.Errorf("unexpected response %+v", resp)
	}

	ttl, err := client.TTL(ctx, "idemp:booking-1").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected ttl within a minute, got %v", ttl)
	}
}
