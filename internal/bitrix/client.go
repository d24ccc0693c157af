// Package bitrix implements the outbound REST surface of the relay: a thin
// Bitrix24 inbound-webhook caller and the open-lines chat closure workflow
// built on top of it.
//
// Bitrix24 inbound webhooks are called as POST <base>/<method> with
// form-urlencoded parameters and answer with a JSON envelope of the shape
//
//	{"result": ..., "error": "CODE", "error_description": "text", "time": {...}}
//
// where "error"/"error_description" are present only on failure. The caller
// in this file normalizes transport failures, non-2xx statuses, and explicit
// envelope errors into a single *APIError so callers can branch on stable
// codes instead of HTTP plumbing.
package bitrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultTimeout bounds a single outbound call when the Client carries no
// explicit timeout.
const DefaultTimeout = 8 * time.Second

// maxResponseBytes caps how much of a REST response is read. Envelopes for
// the methods used here are tiny; the cap guards against misbehaving portals.
const maxResponseBytes = 1 << 20

var callsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bitrix_calls_total",
		Help: "Total number of outbound Bitrix24 REST calls.",
	},
	[]string{"method", "outcome"}, // outcome: ok|api_error|transport_error
)

func init() {
	prometheus.MustRegister(callsTotal)
}

// APIError describes a failed Bitrix24 REST call, carrying the method name
// and the best available diagnostic from the response envelope.
type APIError struct {
	Method      string // REST method that failed, e.g. "imopenlines.operator.finish"
	Code        string // envelope "error" field, may be empty
	Description string // envelope "error_description" field, may be empty
	Status      int    // HTTP status code, 0 when the call never completed
}

// Error renders the most specific message available: explicit description,
// else error code, else HTTP status text, else a generic fallback.
func (e *APIError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("bitrix: %s: %s", e.Method, e.Description)
	case e.Code != "":
		return fmt.Sprintf("bitrix: %s: %s", e.Method, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("bitrix: %s: %s", e.Method, http.StatusText(e.Status))
	default:
		return fmt.Sprintf("bitrix: %s: call failed", e.Method)
	}
}

// IsNotFound reports whether the error represents the portal's
// "entity not found" condition. The stable error code is preferred; the
// description text is inspected only as a fallback because Bitrix does not
// guarantee the wording of error_description across versions.
func (e *APIError) IsNotFound() bool {
	code := strings.ToUpper(e.Code)
	if code == "NOT_FOUND" || code == "ERROR_NOT_FOUND" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Description), "not found")
}

// envelope is the wire shape of every Bitrix24 REST response.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	ErrorCode        string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Client issues single, timed-out calls against a tenant's inbound webhook.
// The base URL is supplied per call because each tenant owns its own webhook;
// the client itself is tenant-agnostic and safe for concurrent use.
type Client struct {
	// HTTP is the underlying transport. Defaults to http.DefaultClient.
	HTTP *http.Client
	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewClient constructs a Client with the given per-call timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{HTTP: &http.Client{}, Timeout: timeout}
}

// Call performs one POST <baseURL>/<method> with params encoded as
// form-urlencoded fields and returns the raw "result" payload.
//
// Failure modes:
//   - context deadline exceeded → error wrapping context.DeadlineExceeded
//   - transport failure → wrapped transport error
//   - non-2xx status or envelope "error" field → *APIError
//
// Exactly one network call is made; there is no retry.
func (c *Client) Call(ctx context.Context, baseURL, method string, params url.Values) (json.RawMessage, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := strings.TrimRight(baseURL, "/") + "/" + method
	body := strings.NewReader(params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("bitrix: %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		callsTotal.WithLabelValues(method, "transport_error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("bitrix: %s: timed out after %s: %w", method, timeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("bitrix: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		callsTotal.WithLabelValues(method, "transport_error").Inc()
		return nil, fmt.Errorf("bitrix: %s: read response: %w", method, err)
	}

	var env envelope
	// A body that is not valid JSON still carries the HTTP status for the
	// error message below, so the unmarshal error itself is not fatal.
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.ErrorCode != "" || env.ErrorDescription != "" {
		callsTotal.WithLabelValues(method, "api_error").Inc()
		return nil, &APIError{
			Method:      method,
			Code:        env.ErrorCode,
			Description: env.ErrorDescription,
			Status:      resp.StatusCode,
		}
	}

	callsTotal.WithLabelValues(method, "ok").Inc()
	return env.Result, nil
}
