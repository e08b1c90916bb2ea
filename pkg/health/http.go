package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker passes when a GET on URL answers with a status in
// [StatusMin, StatusMax]. The default range is 200-399.
type HTTPChecker struct {
	URL       string
	StatusMin int
	StatusMax int
	Client    *http.Client
}

// NewHTTPChecker creates a new HTTP checker
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		StatusMin: http.StatusOK,
		StatusMax: 399,
		Client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Check issues the GET and classifies the status code
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	healthy, message := h.probe(ctx)
	return Result{
		Healthy:   healthy,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func (h *HTTPChecker) probe(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("invalid check URL: %v", err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("GET %s failed: %v", h.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < h.StatusMin || resp.StatusCode > h.StatusMax {
		return false, fmt.Sprintf("GET %s returned %d, want %d-%d", h.URL, resp.StatusCode, h.StatusMin, h.StatusMax)
	}
	return true, fmt.Sprintf("GET %s returned %d", h.URL, resp.StatusCode)
}

// Type returns CheckTypeHTTP
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithStatusRange sets the accepted status code range
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.StatusMin, h.StatusMax = min, max
	return h
}

// WithTimeout sets the per-request timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}
