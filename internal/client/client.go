package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ErrUnavailable is returned when the requested range overlaps a confirmed
// reservation on the remote ledger.
var ErrUnavailable = errors.New("range unavailable")

// APIError carries a non-2xx answer from the reservation API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Booking is one confirmed reservation as listed by GET /bookings.
type Booking struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Guests    int    `json:"guests"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Conflict is one paid confirmation that lost its range.
type Conflict struct {
	ID         int64  `json:"id"`
	SessionID  string `json:"session_id"`
	EventID    string `json:"event_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Guests     int    `json:"guests"`
	Reason     string `json:"reason"`
	DetectedAt string `json:"detected_at"`
}

// Client talks to a running reservation API over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// New constructs a client for baseURL. apiKey is only sent to admin routes.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// UseRedisCache enables caching of the booking list.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// CheckAvailability asks the API whether [from, to) is free. It returns
// ErrUnavailable on overlap.
func (c *Client) CheckAvailability(ctx context.Context, from, to string, guests int) error {
	body := map[string]any{"from": from, "to": to, "guests": guests}
	var resp struct {
		Available bool `json:"available"`
	}
	err := c.doPost(ctx, c.baseURL+"/bookings", body, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return ErrUnavailable
	}
	if err != nil {
		return err
	}
	if !resp.Available {
		return ErrUnavailable
	}
	return nil
}

// ListBookings returns the confirmed reservations.
func (c *Client) ListBookings(ctx context.Context) ([]Booking, error) {
	const cacheKey = "client:bookings"
	var bookings []Booking

	if c.readCache(ctx, cacheKey, &bookings) {
		return bookings, nil
	}
	if err := c.doGet(ctx, c.baseURL+"/bookings", false, &bookings); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, bookings)
	return bookings, nil
}

// ListConflicts calls the admin conflicts route.
func (c *Client) ListConflicts(ctx context.Context) ([]Conflict, error) {
	var wrap struct {
		Conflicts []Conflict `json:"conflicts"`
	}
	if err := c.doGet(ctx, c.baseURL+"/admin/conflicts", true, &wrap); err != nil {
		return nil, err
	}
	return wrap.Conflicts, nil
}

// Ready reports whether the API can reach its store.
func (c *Client) Ready(ctx context.Context) error {
	return c.doGet(ctx, c.baseURL+"/readyz", false, nil)
}

// ProbeGRPC runs a standard health check against addr. An empty service
// checks the server as a whole.
func ProbeGRPC(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, admin bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if admin && c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Code, apiErr.Message = body.Code, body.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
