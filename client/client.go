package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
	"github.com/isey69/sale-forces-crm-sub000/internal/retry"
)

const (
	defaultTimeout   = 3 * time.Second
	defaultUserAgent = "crm-client"

	headerIdempotencyKey = "Idempotency-Key"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

type Client struct {
	client    *http.Client
	baseURL   string
	userAgent string
	retry     *retry.Config
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client for the server at baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		client:    &http.Client{Timeout: defaultTimeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: defaultUserAgent,
		retry:     retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.client.Transport = &transport{next: base, userAgent: c.userAgent}
	return c
}

type transport struct {
	next      http.RoundTripper
	userAgent string
}

// RoundTrip stamps the user agent and the trace context of the request.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", t.userAgent)
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return t.next.RoundTrip(req)
}

// retryable reports whether the request may be sent again with the same
// idempotency key.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusConflict || apiErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (c *Client) do(ctx context.Context, method, path string, body, response any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
	}

	key := ""
	if method != http.MethodGet {
		key = uuid.NewString()
	}

	return retry.Do(ctx, c.retry, retryable, func() error {
		return c.send(ctx, method, path, key, payload, response)
	})
}

func (c *Client) send(ctx context.Context, method, path, key string, payload []byte, response any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(headerIdempotencyKey, key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body crm.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Kind = body.Kind
			apiErr.Message = body.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if response == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func (c *Client) CreateCustomer(ctx context.Context, req crm.CustomerRequest) (domain.Customer, error) {
	var customer domain.Customer
	err := c.do(ctx, http.MethodPost, "/customers", req, &customer)
	return customer, err
}

func (c *Client) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	var customer domain.Customer
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &customer)
	return customer, err
}

func (c *Client) ListCustomers(ctx context.Context, customerType string) ([]domain.Customer, error) {
	path := "/customers"
	if customerType != "" {
		path += "?type=" + url.QueryEscape(customerType)
	}
	var customers []domain.Customer
	err := c.do(ctx, http.MethodGet, path, nil, &customers)
	return customers, err
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, req crm.CustomerRequest) (domain.Customer, error) {
	var customer domain.Customer
	err := c.do(ctx, http.MethodPut, "/customers/"+url.PathEscape(id), req, &customer)
	return customer, err
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/customers/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AddRelationship(ctx context.Context, a, b string) error {
	return c.do(ctx, http.MethodPost, "/relationships", crm.RelationshipRequest{CustomerIDA: a, CustomerIDB: b}, nil)
}

func (c *Client) RemoveRelationship(ctx context.Context, a, b string) error {
	query := url.Values{"a": {a}, "b": {b}}
	return c.do(ctx, http.MethodDelete, "/relationships?"+query.Encode(), nil, nil)
}

func (c *Client) GetRelationships(ctx context.Context, id string) ([]domain.Customer, error) {
	var partners []domain.Customer
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id)+"/relationships", nil, &partners)
	return partners, err
}

func (c *Client) RelationshipCache(ctx context.Context, id string) (domain.RelationshipCache, error) {
	var rc domain.RelationshipCache
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id)+"/relationships/cache", nil, &rc)
	return rc, err
}

func (c *Client) ScheduleCall(ctx context.Context, req crm.ScheduleCallRequest) (domain.ScheduledCall, error) {
	var call domain.ScheduledCall
	err := c.do(ctx, http.MethodPost, "/calls", req, &call)
	return call, err
}

func (c *Client) GetScheduledCall(ctx context.Context, id string) (domain.ScheduledCall, error) {
	var call domain.ScheduledCall
	err := c.do(ctx, http.MethodGet, "/calls/"+url.PathEscape(id), nil, &call)
	return call, err
}

func (c *Client) ListScheduledCalls(ctx context.Context, customerID string) ([]domain.ScheduledCall, error) {
	var calls []domain.ScheduledCall
	err := c.do(ctx, http.MethodGet, "/calls?customerId="+url.QueryEscape(customerID), nil, &calls)
	return calls, err
}

func (c *Client) LogOutcome(ctx context.Context, id string, req crm.LogOutcomeRequest) (domain.CallHistoryEntry, error) {
	var entry domain.CallHistoryEntry
	err := c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(id)+"/outcome", req, &entry)
	return entry, err
}

func (c *Client) CancelScheduledCall(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/calls/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AddHistoryEntry(ctx context.Context, customerID string, req crm.HistoryEntryRequest) (domain.CallHistoryEntry, error) {
	var entry domain.CallHistoryEntry
	err := c.do(ctx, http.MethodPost, "/customers/"+url.PathEscape(customerID)+"/history", req, &entry)
	return entry, err
}

func (c *Client) ListHistory(ctx context.Context, customerID string) ([]domain.CallHistoryEntry, error) {
	var entries []domain.CallHistoryEntry
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/history", nil, &entries)
	return entries, err
}

func (c *Client) DeleteHistoryEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/history/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Statistics(ctx context.Context, customerID string) (domain.CallStatistics, error) {
	var stats domain.CallStatistics
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/statistics", nil, &stats)
	return stats, err
}
