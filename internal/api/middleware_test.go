package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenMiddleware(t *testing.T) {
	const token = "gk_admin-secret"

	mw := adminTokenMiddleware(token)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"valid token returns 200", "Bearer " + token, http.StatusOK},
		{"missing authorization header returns 401", "", http.StatusUnauthorized},
		{"wrong token returns 401", "Bearer gk_wrong", http.StatusUnauthorized},
		{"invalid bearer format returns 401", token, http.StatusUnauthorized},
		{"empty bearer returns 401", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sweep", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			mw(handler).ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			if rr.Code == http.StatusUnauthorized {
				assert.Contains(t, rr.Body.String(), models.ErrorCodeUnauthorized)
			}
		})
	}
}

func TestAdminTokenMiddleware_DisabledWithoutToken(t *testing.T) {
	mw := adminTokenMiddleware("")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	mw(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sweep", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)
	env.config.Security.AdminToken = "gk_admin-secret"
	router := env.router()

	adminCalls := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodPut, "/api/v1/load", models.LoadRequest{LoadFactor: float64Ptr(0.5)}},
		{http.MethodPut, "/api/v1/buckets/u1", nil},
		{http.MethodPost, "/api/v1/buckets/u1/refill", nil},
		{http.MethodPost, "/api/v1/sweep", nil},
	}

	for _, c := range adminCalls {
		t.Run(c.method+" "+c.path, func(t *testing.T) {
			rr := doRequest(t, router, c.method, c.path, c.body)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)

			rr = doRequest(t, router, c.method, c.path, c.body, "Authorization", "Bearer gk_admin-secret")
			assert.NotEqual(t, http.StatusUnauthorized, rr.Code)
		})
	}

	// Read and admission routes stay open.
	assert.Equal(t, http.StatusOK, doRequest(t, router, http.MethodGet, "/api/v1/load", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, "/api/v1/admit", models.AdmitRequest{ClientID: "x"}).Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generates an ID", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})

	t.Run("propagates the caller's ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := requestIDMiddleware(recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), models.ErrorCodeInternalError)
	assert.Contains(t, rr.Body.String(), rr.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	out := buf.String()
	require.Contains(t, out, "HTTP request")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "path=/api/v1/stats")

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String(), "health checks log at debug")
}
