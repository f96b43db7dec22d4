// Command loadtest drives POST /api/v1/admit at a fixed rate across a set of
// client IDs and reports how many requests were admitted and rejected.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/version"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

type options struct {
	baseURL  string
	rate     int
	duration time.Duration
	clients  int
	workers  uint64
	timeout  time.Duration
}

type report struct {
	Requests  uint64
	Accepted  int
	Rejected  int
	Other     int
	Errors    []string
	P50, P99  time.Duration
	Rate      float64
	Successes float64
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "Gatekeeper base URL")
	flag.IntVar(&opts.rate, "rate", 100, "Requests per second")
	flag.DurationVar(&opts.duration, "duration", 10*time.Second, "Attack duration")
	flag.IntVar(&opts.clients, "clients", 5, "Number of distinct client IDs")
	flag.Uint64Var(&opts.workers, "workers", 10, "Initial attack workers")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Per-request timeout")
	flag.Parse()

	r, err := run(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printReport(os.Stdout, r)
}

func targets(opts options) ([]vegeta.Target, error) {
	if opts.clients < 1 {
		return nil, fmt.Errorf("clients must be at least 1")
	}
	url := strings.TrimRight(opts.baseURL, "/") + "/api/v1/admit"
	header := http.Header{
		"Content-Type": []string{"application/json"},
		"User-Agent":   []string{version.GetInfo().UserAgent("loadtest")},
	}

	out := make([]vegeta.Target, 0, opts.clients)
	for i := 0; i < opts.clients; i++ {
		body, err := json.Marshal(models.AdmitRequest{ClientID: fmt.Sprintf("loadtest-%d", i)})
		if err != nil {
			return nil, err
		}
		out = append(out, vegeta.Target{
			Method: http.MethodPost,
			URL:    url,
			Body:   body,
			Header: header,
		})
	}
	return out, nil
}

func run(opts options) (report, error) {
	if opts.rate < 1 {
		return report{}, fmt.Errorf("rate must be at least 1")
	}
	tgts, err := targets(opts)
	if err != nil {
		return report{}, err
	}

	attacker := vegeta.NewAttacker(
		vegeta.Timeout(opts.timeout),
		vegeta.Workers(opts.workers),
		vegeta.KeepAlive(true),
	)
	pacer := vegeta.Rate{Freq: opts.rate, Per: time.Second}

	var metrics vegeta.Metrics
	for res := range attacker.Attack(vegeta.NewStaticTargeter(tgts...), pacer, opts.duration, "gatekeeper-admit") {
		metrics.Add(res)
	}
	metrics.Close()

	r := report{
		Requests:  metrics.Requests,
		Errors:    metrics.Errors,
		P50:       metrics.Latencies.P50,
		P99:       metrics.Latencies.P99,
		Rate:      metrics.Rate,
		Successes: metrics.Success,
	}
	for code, n := range metrics.StatusCodes {
		switch code {
		case "200":
			r.Accepted += n
		case "429":
			r.Rejected += n
		default:
			r.Other += n
		}
	}
	return r, nil
}

func printReport(w io.Writer, r report) {
	fmt.Fprintf(w, "requests:  %d (%.1f/s)\n", r.Requests, r.Rate)
	fmt.Fprintf(w, "accepted:  %d\n", r.Accepted)
	fmt.Fprintf(w, "rejected:  %d\n", r.Rejected)
	if r.Other > 0 {
		fmt.Fprintf(w, "other:     %d\n", r.Other)
	}
	if r.Requests > 0 {
		fmt.Fprintf(w, "admitted:  %.1f%%\n", 100*float64(r.Accepted)/float64(r.Requests))
	}
	fmt.Fprintf(w, "latency:   p50=%s p99=%s\n", r.P50, r.P99)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "error:     %s\n", e)
	}
}
