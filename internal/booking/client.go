package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wfsantos/agendabot/pkg/logging"
)

// Config controls how the scheduling-service client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client wraps the internal scheduling service endpoints the dialogue needs.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

var _ Catalog = (*Client)(nil)
var _ Availability = (*Client)(nil)
var _ Booker = (*Client)(nil)

// NewClient creates a configured Client with sane defaults.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("booking: base URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}, nil
}

// ActiveServices lists the tenant's bookable services.
func (c *Client) ActiveServices(ctx context.Context, tenantID string) ([]Service, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("booking: tenant id required")
	}
	path := fmt.Sprintf("/internal/tenants/%s/services", url.PathEscape(tenantID))
	data, err := c.invoke(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return nil, err
	}
	wrapper, err := decodeDataWrapper[[]serviceDTO](data)
	if err != nil {
		return nil, err
	}
	services := make([]Service, 0, len(*wrapper))
	for _, dto := range *wrapper {
		services = append(services, Service{
			ID:       dto.ID,
			Name:     dto.Name,
			Price:    dto.PriceCents,
			Capacity: dto.Capacity,
			FullDay:  dto.FullDay,
		})
	}
	return services, nil
}

// SlotsFor returns the open slots for a service on a date, ordered by time.
func (c *Client) SlotsFor(ctx context.Context, tenantID, serviceID string, date time.Time) ([]Slot, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(serviceID) == "" {
		return nil, errors.New("booking: tenant and service ids required")
	}
	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	q.Set("service_id", serviceID)
	path := fmt.Sprintf("/internal/tenants/%s/availability", url.PathEscape(tenantID))
	data, err := c.invoke(ctx, http.MethodGet, path, q, nil, "")
	if err != nil {
		return nil, err
	}
	wrapper, err := decodeDataWrapper[[]slotDTO](data)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, len(*wrapper))
	for _, dto := range *wrapper {
		slots = append(slots, Slot{Time: dto.Time, RemainingCapacity: dto.RemainingCapacity})
	}
	return slots, nil
}

// CreateBooking creates an appointment and returns its id. Scheduling-domain
// rejections come back as the package's typed errors.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(struct {
		TenantID      string `json:"tenant_id"`
		ServiceID     string `json:"service_id"`
		Date          string `json:"date"`
		Time          string `json:"time,omitempty"`
		Quantity      int    `json:"quantity"`
		CustomerName  string `json:"customer_name"`
		CustomerPhone string `json:"customer_phone"`
		Origin        string `json:"origin"`
	}{
		TenantID:      req.TenantID,
		ServiceID:     req.ServiceID,
		Date:          req.Date.Format("2006-01-02"),
		Time:          req.Time,
		Quantity:      req.Quantity,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Origin:        req.Origin,
	})
	if err != nil {
		return "", fmt.Errorf("booking: marshal booking body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/internal/appointments", nil, body, "application/json")
	if err != nil {
		return "", err
	}
	created, err := decodeDataWrapper[bookingDTO](data)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (r BookingRequest) validate() error {
	switch {
	case strings.TrimSpace(r.TenantID) == "":
		return errors.New("booking: tenant id required")
	case strings.TrimSpace(r.ServiceID) == "":
		return errors.New("booking: service id required")
	case r.Date.IsZero():
		return errors.New("booking: date required")
	case r.Quantity <= 0:
		return errors.New("booking: quantity must be positive")
	case strings.TrimSpace(r.CustomerName) == "":
		return errors.New("booking: customer name required")
	case strings.TrimSpace(r.CustomerPhone) == "":
		return errors.New("booking: customer phone required")
	}
	return nil
}

type serviceDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Capacity   int    `json:"capacity"`
	FullDay    bool   `json:"full_day"`
}

type slotDTO struct {
	Time              string `json:"time"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

type bookingDTO struct {
	ID string `json:"id"`
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	fullURL := c.buildURL(path, query)
	idempotencyKey := uuid.NewString()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("booking: build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("Idempotency-Key", idempotencyKey)
		if body != nil {
			ct := contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("booking: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("booking: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("booking: request failed without response")
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("scheduling retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

type apiError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func (e *apiError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("booking: %s (status=%d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("booking: http status %d", e.StatusCode)
}

// domainErrors maps scheduling-service rejection codes to typed failures the
// dialogue engine can route on.
var domainErrors = map[string]error{
	"date_in_past": ErrDateInPast,
	"date_too_far": ErrDateTooFar,
	"slot_taken":   ErrSlotTaken,
	"monthly_cap":  ErrMonthlyCapReached,
}

func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &apiError{StatusCode: status, Detail: string(body)}
	}
	parsed.StatusCode = status
	if domainErr, ok := domainErrors[parsed.Code]; ok {
		return domainErr
	}
	return &parsed
}

func decodeDataWrapper[T any](body []byte) (*T, error) {
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("booking: decode response: %w", err)
	}
	return &wrapper.Data, nil
}
