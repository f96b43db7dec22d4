// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Rich error information with codes and details for debugging
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// DecisionResponse is the outcome of one admission check.
//
// Client Usage:
// - Check Accepted first
// - On rejection wait RetryAfterMs before trying again
// - Remaining counts whole tokens left after this decision
type DecisionResponse struct {
	ClientID     string `json:"client_id"`
	Accepted     bool   `json:"accepted"`
	Reason       string `json:"reason,omitempty"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

type LoadResponse struct {
	LoadFactor         float64 `json:"load_factor"`
	MaxAllowedRequests int64   `json:"max_allowed_requests"`
}

// BucketResponse is a point-in-time snapshot of one client's bucket.
type BucketResponse struct {
	ClientID      string    `json:"client_id"`
	Capacity      int       `json:"capacity"`
	Tokens        float64   `json:"tokens"`
	LastRefillAt  time.Time `json:"last_refill_at"`
	LastRequestAt time.Time `json:"last_request_at"`
	Created       bool      `json:"created,omitempty"`
}

type ListSweepsResponse struct {
	Sweeps     []*SweepRecord `json:"sweeps"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
}

type DecisionCounters struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// ClientStats holds the decision counters for one client.
type ClientStats struct {
	ClientID string `json:"client_id"`
	DecisionCounters
}

type StatsResponse struct {
	Total      DecisionCounters            `json:"total"`
	Client     *ClientStats                `json:"client,omitempty"`
	Routes     map[string]DecisionCounters `json:"routes,omitempty"`
	Buckets    int                         `json:"buckets"`
	LoadFactor float64                     `json:"load_factor"`
	LastSweep  *SweepRecord                `json:"last_sweep,omitempty"`
	SystemInfo map[string]interface{}      `json:"system_info,omitempty"`
}

// ErrorResponse provides structured error information with debugging context.
//
// Error Handling Design:
// - Consistent error structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - Human-readable messages for user interfaces
// - Request ID for tracing and support
//
// Error Categories:
// - Rate limit errors: the client has no tokens left
// - Validation errors: Input format/constraint violations
// - Not found errors: Bucket doesn't exist
// - Authorization errors: Missing or wrong admin token
// - Internal errors: Server-side issues
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Health Status Constants
//
// Health Monitoring:
// - Healthy: All systems operational
// - Degraded: Partial functionality (stats or history backend unreachable)
// - Unhealthy: Major issues affecting core functionality
// - Unknown: Health status cannot be determined
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: No tokens left
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Bucket doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Service temporarily down
	ErrorCodeBadGateway         = "BAD_GATEWAY"         // 502: Upstream unreachable
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// WithRequestID attaches the request ID and returns the response for chaining.
func (e *ErrorResponse) WithRequestID(id string) *ErrorResponse {
	e.RequestID = id
	return e
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
