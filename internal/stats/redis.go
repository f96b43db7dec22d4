package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccepted = "accepted"
	fieldRejected = "rejected"
)

// Time series granularities for WithBucket.
const (
	BucketMinute = "minute"
	BucketNone   = "none"
)

// RedisRecorder stores counters in Redis hashes:
//
//	<prefix>:total               accepted/rejected, never expires
//	<prefix>:minute:<yyyymmddhhmm> accepted/rejected, expires after ttl
//	<prefix>:route               "<route>:accepted" / "<route>:rejected"
//	<prefix>:client:<id>         accepted/rejected, expires after ttl (optional)
type RedisRecorder struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the expiry of time-bucketed and per-client keys.
func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// WithBucket selects the time series granularity, BucketMinute or
// BucketNone. An empty value keeps the default.
func WithBucket(bucket string) RedisOption {
	return func(r *RedisRecorder) {
		if b := strings.ToLower(strings.TrimSpace(bucket)); b != "" {
			r.bucket = b
		}
	}
}

// WithRedisTrackClients enables per-client hashes.
func WithRedisTrackClients(track bool) RedisOption {
	return func(r *RedisRecorder) { r.trackKeys = track }
}

// NewRedisRecorder creates a recorder on rdb.
func NewRedisRecorder(rdb *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "gatekeeper:stats",
		ttl:    24 * time.Hour,
		bucket: BucketMinute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping checks connectivity.
func (r *RedisRecorder) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Record increments the counters for ev in a single pipeline.
func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := fieldRejected
	if ev.Accepted {
		field = fieldAccepted
	}

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), field, 1)

	if r.bucket == BucketMinute {
		bucketKey := r.minuteKey(at)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, bucketKey, r.ttl)
		}
	}

	if route := routeOf(ev); route != "" {
		pipe.HIncrBy(ctx, r.routeKey(), route+":"+field, 1)
	}

	if r.trackKeys {
		clientKey := r.clientKey(ev.ClientID)
		pipe.HIncrBy(ctx, clientKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, clientKey, r.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record stats event: %w", err)
	}
	return nil
}

// Summary reads the total and per-route hashes.
func (r *RedisRecorder) Summary(ctx context.Context) (Summary, error) {
	total, err := r.rdb.HGetAll(ctx, r.totalKey()).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read stats totals: %w", err)
	}
	routes, err := r.rdb.HGetAll(ctx, r.routeKey()).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read route stats: %w", err)
	}

	s := Summary{Total: countersFromHash(total)}
	for field, raw := range routes {
		idx := strings.LastIndex(field, ":")
		if idx <= 0 {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if s.Routes == nil {
			s.Routes = make(map[string]Counters)
		}
		route, kind := field[:idx], field[idx+1:]
		c := s.Routes[route]
		switch kind {
		case fieldAccepted:
			c.Accepted += n
		case fieldRejected:
			c.Rejected += n
		}
		s.Routes[route] = c
	}
	return s, nil
}

// Client reads the per-client hash for clientID.
func (r *RedisRecorder) Client(ctx context.Context, clientID string) (Counters, error) {
	if !r.trackKeys {
		return Counters{}, ErrClientsNotTracked
	}
	h, err := r.rdb.HGetAll(ctx, r.clientKey(clientID)).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("failed to read client stats: %w", err)
	}
	return countersFromHash(h), nil
}

// Close closes the underlying client.
func (r *RedisRecorder) Close() error {
	return r.rdb.Close()
}

func (r *RedisRecorder) totalKey() string { return r.prefix + ":total" }
func (r *RedisRecorder) routeKey() string { return r.prefix + ":route" }

func (r *RedisRecorder) clientKey(id string) string { return r.prefix + ":client:" + id }

func (r *RedisRecorder) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func countersFromHash(h map[string]string) Counters {
	var c Counters
	if v, err := strconv.ParseInt(h[fieldAccepted], 10, 64); err == nil {
		c.Accepted = v
	}
	if v, err := strconv.ParseInt(h[fieldRejected], 10, 64); err == nil {
		c.Rejected = v
	}
	return c
}
