package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/stats"

	"golang.org/x/time/rate"
)

// DefaultClientHeader carries the caller-supplied client identifier.
const DefaultClientHeader = "X-Client-ID"

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	// ClientHeader names the request header holding the client ID. It is
	// read only when TrustClientHeader is set.
	ClientHeader string

	// TrustClientHeader keys requests by ClientHeader. Enable only when a
	// trusted proxy sets or strips the header.
	TrustClientHeader bool

	// TrustForwardedFor keys requests by the first X-Forwarded-For or the
	// X-Real-IP address instead of the connection's remote address.
	TrustForwardedFor bool

	// Stats receives one event per decision. Defaults to stats.Nop.
	Stats stats.Recorder

	// RejectLogRate caps rejection warnings per second across all clients.
	RejectLogRate float64
}

// Middleware returns HTTP middleware that admits requests through limiter.
// It counts requests in flight through the wrapped handler and reports that
// count to limiter.UpdateLoad before each admission check.
func Middleware(limiter Limiter, opts MiddlewareOptions) func(http.Handler) http.Handler {
	header := ""
	if opts.TrustClientHeader {
		header = opts.ClientHeader
		if header == "" {
			header = DefaultClientHeader
		}
	}
	if opts.Stats == nil {
		opts.Stats = stats.Nop{}
	}
	if opts.RejectLogRate <= 0 {
		opts.RejectLogRate = 5
	}
	logLimiter := rate.NewLimiter(rate.Limit(opts.RejectLogRate), int(math.Ceil(opts.RejectLogRate)))

	var inFlight atomic.Int64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			active := inFlight.Add(1)
			defer inFlight.Add(-1)
			limiter.UpdateLoad(active)

			clientID := ClientID(r, header, opts.TrustForwardedFor)
			d := limiter.HandleRequest(clientID)

			if err := opts.Stats.Record(r.Context(), stats.Event{
				ClientID: clientID,
				Accepted: d.Accepted,
				Method:   r.Method,
				Path:     r.URL.Path,
				At:       time.Now(),
			}); err != nil {
				slog.Debug("Failed to record admission stats", "error", err)
			}

			WriteHeaders(w, d)

			if !d.Accepted {
				WriteRejection(w, d)
				if logLimiter.Allow() {
					slog.Warn("Rate limit exceeded",
						"client_id", clientID,
						"limit", d.Limit,
						"load_factor", limiter.LoadFactor(),
						"retry_after", d.RetryAfter,
					)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteHeaders sets the X-RateLimit-* headers for d.
func WriteHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}

// WriteRejection writes a 429 response with a Retry-After header and a JSON
// error body.
func WriteRejection(w http.ResponseWriter, d Decision) {
	w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(d.RetryAfter)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	errorResp := models.NewErrorResponse(d.Reason, models.ErrorCodeRateLimitExceeded)
	json.NewEncoder(w).Encode(errorResp)
}

// RetryAfterSeconds rounds d up to whole seconds, with a minimum of one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ClientID resolves the rate limit key for r: the named header if present,
// otherwise the client IP. An empty header disables the header lookup.
func ClientID(r *http.Request, header string, trustForwardedFor bool) string {
	if header != "" {
		if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
			return id
		}
	}
	return clientIP(r, trustForwardedFor)
}

// clientIP returns the connection's remote host, or the address reported by
// proxy headers when those are trusted.
func clientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
