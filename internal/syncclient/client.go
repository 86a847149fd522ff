package syncclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/azula9713/yae-their-share/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("remote unavailable")
)

// DefaultBreakerFailures is the consecutive transport failure count that
// opens the breaker.
const DefaultBreakerFailures = 5

// Options tunes a Client. Zero values select defaults.
type Options struct {
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client is an HTTP client for the splitsync records service.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client

	cb *gobreaker.CircuitBreaker[any]
}

// New creates a new records client.
func New(baseURL, token string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	failures := opts.BreakerFailures

	c := &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: opts.Timeout},
	}
	c.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "records-api",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only transport failures count; the service answering with a
		// domain error is a healthy service.
		IsSuccessful: func(err error) bool {
			return err == nil || IsDomainError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("syncclient: breaker", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// IsDomainError reports whether err is an answer from the service rather
// than a failure to reach it.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}

// IsAuthError reports whether err is an authorization rejection. Retrying
// such a call cannot change its outcome.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

// RecordsResponse is the response from GET /v1/records.
type RecordsResponse struct {
	Records []models.Split `json:"records"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
// It bypasses the breaker so that a probe can observe recovery.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateRecord creates the record remotely.
func (c *Client) CreateRecord(ctx context.Context, s models.Split) (*models.Split, error) {
	var resp models.Split
	if err := c.do(ctx, http.MethodPost, "/v1/records", s, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateRecord replaces the remote record with s.
func (c *Client) UpdateRecord(ctx context.Context, s models.Split) error {
	return c.do(ctx, http.MethodPut, "/v1/records/"+url.PathEscape(s.SplitID), s, nil)
}

// DeleteRecord logically deletes the remote record.
func (c *Client) DeleteRecord(ctx context.Context, splitID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/records/"+url.PathEscape(splitID), nil, nil)
}

// RecordsByOwner returns every record owned by ownerID, logically deleted
// ones included.
func (c *Client) RecordsByOwner(ctx context.Context, ownerID string) ([]models.Split, error) {
	q := url.Values{}
	q.Set("owner", ownerID)
	q.Set("include_deleted", "true")
	var resp RecordsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/records?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// RecordByID returns a single record. Private records of other owners
// yield ErrForbidden.
func (c *Client) RecordByID(ctx context.Context, splitID string) (*models.Split, error) {
	var resp models.Split
	if err := c.do(ctx, http.MethodGet, "/v1/records/"+url.PathEscape(splitID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// do executes an authenticated request through the breaker.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.doRequest(ctx, method, path, body, result, true)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrUnavailable, err)
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		msg := string(respBody)
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			msg = apiErr.Message
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, msg)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
		if apiErr.Code != "" {
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
