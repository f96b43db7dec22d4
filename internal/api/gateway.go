package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"gatekeeper/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NewGateway returns a reverse proxy to upstream. The request ID and the
// current trace context travel with the proxied request. Upstream failures
// become a 502 JSON error.
func NewGateway(upstream string) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %s", upstream)
	}

	logger := slog.Default().With("component", "gateway", "upstream", target.String())

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host
			if id := RequestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(RequestIDHeader, id)
			}
			otel.GetTextMapPropagator().Inject(pr.In.Context(), propagation.HeaderCarrier(pr.Out.Header))
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("Upstream request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
				"request_id", RequestIDFromContext(r.Context()))
			writeError(w, r, http.StatusBadGateway, models.ErrorCodeBadGateway, "Upstream unavailable")
		},
	}
	return proxy, nil
}
