package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	before := time.Now()
	resp := NewErrorResponse("Rate limit exceeded. Try again later.", ErrorCodeRateLimitExceeded)

	assert.Equal(t, "error", resp.Error)
	assert.Equal(t, "Rate limit exceeded. Try again later.", resp.Message)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Code)
	assert.False(t, resp.Timestamp.Before(before))
	assert.Empty(t, resp.RequestID)

	resp.WithRequestID("req-1")
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestNewHealthCheckResponse(t *testing.T) {
	resp := NewHealthCheckResponse(StatusHealthy)

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.NotNil(t, resp.Components)
	assert.NotNil(t, resp.Metrics)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Second)
}

func TestHealthCheckResponse_AddComponent(t *testing.T) {
	resp := NewHealthCheckResponse(StatusHealthy)
	resp.AddComponent("storage", StatusDegraded, "ping failed")

	require.Contains(t, resp.Components, "storage")
	component := resp.Components["storage"]
	assert.Equal(t, StatusDegraded, component.Status)
	assert.Equal(t, "ping failed", component.Message)
	assert.NotNil(t, component.Details)
}

func TestHealthCheckResponse_AddMetric(t *testing.T) {
	resp := NewHealthCheckResponse(StatusHealthy)
	resp.AddMetric("buckets", 3)
	resp.AddMetric("load_factor", 0.25)

	assert.Equal(t, 3, resp.Metrics["buckets"])
	assert.Equal(t, 0.25, resp.Metrics["load_factor"])
}

func TestHealthStatusConstants(t *testing.T) {
	assert.Equal(t, "healthy", StatusHealthy)
	assert.Equal(t, "unhealthy", StatusUnhealthy)
	assert.Equal(t, "degraded", StatusDegraded)
	assert.Equal(t, "unknown", StatusUnknown)
}

func TestErrorCodeConstants(t *testing.T) {
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", ErrorCodeRateLimitExceeded)
	assert.Equal(t, "NOT_FOUND", ErrorCodeNotFound)
	assert.Equal(t, "BAD_REQUEST", ErrorCodeBadRequest)
	assert.Equal(t, "UNAUTHORIZED", ErrorCodeUnauthorized)
	assert.Equal(t, "INTERNAL_ERROR", ErrorCodeInternalError)
}

func TestDecisionResponse_OmitsEmptyRejectionFields(t *testing.T) {
	data, err := json.Marshal(DecisionResponse{ClientID: "a", Accepted: true, Limit: 10, Remaining: 9})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "reason")
	assert.NotContains(t, raw, "retry_after_ms")
	assert.Equal(t, float64(9), raw["remaining"])
}

func TestLoadRequest_Validate(t *testing.T) {
	active := int64(10)
	factor := 0.5

	assert.NoError(t, (&LoadRequest{ActiveRequests: &active}).Validate())
	assert.NoError(t, (&LoadRequest{LoadFactor: &factor}).Validate())
	assert.Error(t, (&LoadRequest{}).Validate())
	assert.Error(t, (&LoadRequest{ActiveRequests: &active, LoadFactor: &factor}).Validate())
}

func TestLoadRequest_DistinguishesZeroFromAbsent(t *testing.T) {
	var req LoadRequest
	require.NoError(t, json.Unmarshal([]byte(`{"active_requests": 0}`), &req))
	require.NotNil(t, req.ActiveRequests)
	assert.Equal(t, int64(0), *req.ActiveRequests)
	assert.Nil(t, req.LoadFactor)
	assert.NoError(t, req.Validate())
}
