package stats

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.Record(context.Background(), Event{ClientID: "a"}))
	s, err := r.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, s)

	_, err = r.Client(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClientsNotTracked)
}

func TestRouteOf(t *testing.T) {
	assert.Equal(t, "", routeOf(Event{}))
	assert.Equal(t, "GET /x", routeOf(Event{Method: "GET", Path: "/x"}))
	assert.Equal(t, "/x", routeOf(Event{Path: "/x"}))
	assert.Equal(t, "POST", routeOf(Event{Method: "POST"}))
}

func TestMemoryRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder(WithTrackClients(true))

	require.NoError(t, r.Record(ctx, Event{ClientID: "a", Accepted: true, Method: "GET", Path: "/x"}))
	require.NoError(t, r.Record(ctx, Event{ClientID: "a", Accepted: false, Method: "GET", Path: "/x"}))
	require.NoError(t, r.Record(ctx, Event{ClientID: "b", Accepted: true}))

	s, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counters{Accepted: 2, Rejected: 1}, s.Total)
	assert.Equal(t, map[string]Counters{"GET /x": {Accepted: 1, Rejected: 1}}, s.Routes)

	a, err := r.Client(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Counters{Accepted: 1, Rejected: 1}, a)

	b, err := r.Client(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, Counters{Accepted: 1}, b)

	unknown, err := r.Client(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, Counters{}, unknown)
}

func TestMemoryRecorder_ClientTrackingDisabled(t *testing.T) {
	r := NewMemoryRecorder()
	require.NoError(t, r.Record(context.Background(), Event{ClientID: "a", Accepted: true}))
	_, err := r.Client(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClientsNotTracked)
}

func TestWithBucket(t *testing.T) {
	assert.Equal(t, BucketMinute, NewRedisRecorder(nil).bucket)
	assert.Equal(t, BucketMinute, NewRedisRecorder(nil, WithBucket("")).bucket)
	assert.Equal(t, BucketNone, NewRedisRecorder(nil, WithBucket(" None ")).bucket)

	r := NewRedisRecorder(nil, WithPrefix("gk:stats:"))
	at := time.Date(2024, 6, 1, 12, 34, 56, 0, time.UTC)
	assert.Equal(t, "gk:stats:minute:202406011234", r.minuteKey(at))
	assert.Equal(t, "gk:stats:client:tenant-a", r.clientKey("tenant-a"))
}

func TestMemoryRecorder_SummaryIsACopy(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder()
	require.NoError(t, r.Record(ctx, Event{Accepted: true, Path: "/x"}))

	s, _ := r.Summary(ctx)
	s.Routes["/x"] = Counters{Accepted: 100}

	again, _ := r.Summary(ctx)
	assert.Equal(t, int64(1), again.Routes["/x"].Accepted)
}

func TestCountersFromHash(t *testing.T) {
	c := countersFromHash(map[string]string{"accepted": "5", "rejected": "oops"})
	assert.Equal(t, Counters{Accepted: 5}, c)
}

// TestRedisRecorder requires a Redis instance; set GATEKEEPER_TEST_REDIS_ADDR
// or run one on localhost:6379. Skip with: go test -short
func TestRedisRecorder(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test")
	}

	addr := os.Getenv("GATEKEEPER_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	prefix := fmt.Sprintf("gatekeeper:test:%d", time.Now().UnixNano())
	r := NewRedisRecorder(rdb, WithPrefix(prefix), WithTTL(time.Minute), WithRedisTrackClients(true))
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		t.Skip("Redis not available:", err)
	}
	defer func() {
		keys, _ := rdb.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
	}()

	require.NoError(t, r.Record(ctx, Event{ClientID: "a", Accepted: true, Method: "GET", Path: "/x"}))
	require.NoError(t, r.Record(ctx, Event{ClientID: "a", Accepted: false, Method: "GET", Path: "/x"}))
	require.NoError(t, r.Record(ctx, Event{ClientID: "b", Accepted: true}))

	s, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counters{Accepted: 2, Rejected: 1}, s.Total)
	assert.Equal(t, Counters{Accepted: 1, Rejected: 1}, s.Routes["GET /x"])

	client, err := r.Client(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Counters{Accepted: 1, Rejected: 1}, client)

	minutes, err := rdb.Keys(ctx, prefix+":minute:*").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, minutes)

	flat := NewRedisRecorder(rdb, WithPrefix(prefix+":flat"), WithBucket(BucketNone))
	require.NoError(t, flat.Record(ctx, Event{ClientID: "a", Accepted: true}))
	minutes, err = rdb.Keys(ctx, prefix+":flat:minute:*").Result()
	require.NoError(t, err)
	assert.Empty(t, minutes)

	ttl, err := rdb.TTL(ctx, prefix+":client:a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
