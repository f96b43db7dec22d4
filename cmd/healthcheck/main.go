// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the /health endpoint returns HTTP 200, and 1
// otherwise. Compile with CGO_ENABLED=0 for a fully static binary.
//
// GATEKEEPER_HEALTHCHECK_URL overrides the default http://localhost:8080/health.
package main

import (
	"net/http"
	"os"
	"time"

	"gatekeeper/internal/version"
)

const defaultURL = "http://localhost:8080/health"

func main() {
	url := os.Getenv("GATEKEEPER_HEALTHCHECK_URL")
	if url == "" {
		url = defaultURL
	}
	os.Exit(check(url))
}

func check(url string) int {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent("healthcheck"))

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
