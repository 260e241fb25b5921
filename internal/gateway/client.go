// Package gateway implements the resilient client for the external WhatsApp
// HTTP gateway. Deployments of the gateway differ in base path, auth header
// and recipient address format, so every logical operation walks an ordered
// candidate matrix under strict attempt and time budgets instead of assuming
// one request shape.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wfsantos/agendabot/internal/observability/metrics"
	"github.com/wfsantos/agendabot/pkg/logging"
)

var tracer = otel.Tracer("agendabot.internal.gateway")

const (
	defaultAttemptCap  = 4
	defaultDeadline    = 35 * time.Second
	defaultCallTimeout = 20 * time.Second
)

// Config controls how the gateway client behaves.
type Config struct {
	BaseURL     string
	APIKey      string
	CountryCode string
	AttemptCap  int
	Deadline    time.Duration
	CallTimeout time.Duration
	HTTPClient  *http.Client
	Logger      *logging.Logger
	Metrics     *metrics.MessagingMetrics
}

// Client executes logical operations against the messaging gateway.
type Client struct {
	apiKey      string
	bases       []string
	countryCode string
	deadline    time.Duration
	callTimeout time.Duration
	httpClient  *http.Client
	logger      *logging.Logger
	metrics     *metrics.MessagingMetrics
}

// New validates the gateway URL and precomputes the base-URL candidate list.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	attemptCap := cfg.AttemptCap
	if attemptCap <= 0 {
		attemptCap = defaultAttemptCap
	}
	bases, err := baseCandidates(cfg.BaseURL, attemptCap)
	if err != nil {
		return nil, err
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: callTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:      cfg.APIKey,
		bases:       bases,
		countryCode: cfg.CountryCode,
		deadline:    deadline,
		callTimeout: callTimeout,
		httpClient:  httpClient,
		logger:      logger,
		metrics:     cfg.Metrics,
	}, nil
}

// SendText delivers a text message to a phone address, retrying across
// recipient and text encodings when the upstream rejects the format. Failures
// of any other class abort immediately so outages are not masked as
// formatting issues.
func (c *Client) SendText(ctx context.Context, instanceID, recipient, text string) error {
	ctx, span := tracer.Start(ctx, "gateway.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.instance", instanceID))

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	addrs := recipientVariants(recipient, c.countryCode)
	if len(addrs) == 0 {
		return fmt.Errorf("gateway: no usable recipient derived from %q", recipient)
	}
	path := "/message/sendText/" + url.PathEscape(instanceID)
	var lastErr error
	for _, addr := range addrs {
		for _, variant := range textVariants(text) {
			body, err := json.Marshal(struct {
				Number string `json:"number"`
				Text   string `json:"text"`
			}{Number: addr, Text: variant})
			if err != nil {
				return fmt.Errorf("gateway: marshal send body: %w", err)
			}
			_, err = c.execute(ctx, "send_text", request{method: http.MethodPost, path: path, body: body})
			if err == nil {
				span.SetAttributes(attribute.String("gateway.recipient_variant", addr))
				return nil
			}
			lastErr = err
			if !errors.Is(err, ErrRecipientRejected) {
				span.RecordError(err)
				return err
			}
			c.logger.Debug("recipient variant rejected", "address", addr)
		}
	}
	span.RecordError(lastErr)
	return lastErr
}

// ConnectionState reports the gateway session state for an instance. A 404
// here means the instance genuinely does not exist, so it is surfaced as
// ErrNotFound instead of advancing the base-URL walk; callers can provision
// and retry.
func (c *Client) ConnectionState(ctx context.Context, instanceID string) (string, error) {
	ctx, span := tracer.Start(ctx, "gateway.connection_state")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	res, err := c.execute(ctx, "connection_state", request{
		method:        http.MethodGet,
		path:          "/instance/connectionState/" + url.PathEscape(instanceID),
		notFoundFinal: true,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return parseConnectionState(res.body)
}

// CreateInstance provisions a gateway instance, used after ConnectionState
// reports ErrNotFound.
func (c *Client) CreateInstance(ctx context.Context, instanceID string) error {
	ctx, span := tracer.Start(ctx, "gateway.create_instance")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	body, err := json.Marshal(map[string]string{"instanceName": instanceID})
	if err != nil {
		return fmt.Errorf("gateway: marshal instance body: %w", err)
	}
	_, err = c.execute(ctx, "create_instance", request{method: http.MethodPost, path: "/instance/create", body: body})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

type request struct {
	method string
	path   string
	body   []byte
	// notFoundFinal marks operations where a 404 means "resource absent"
	// rather than "wrong base URL shape".
	notFoundFinal bool
}

type response struct {
	status int
	body   []byte
}

// execute walks base-URL and auth candidates in order until one succeeds or
// the shared probe policy stops the walk. The caller is responsible for the
// overall deadline; each individual call gets its own shorter timeout.
func (c *Client) execute(ctx context.Context, op string, req request) (*response, error) {
	policy := newProbePolicy()
	for _, base := range c.bases {
	authLoop:
		for _, auth := range authVariants() {
			if ctx.Err() != nil {
				return nil, variantErr(ErrUnreachable, "operation deadline exceeded", policy.attempts)
			}
			res, attempt, err := c.doOnce(ctx, req, base, auth)
			if err != nil {
				attempt.Err = err.Error()
				policy.observe(attempt)
				c.metrics.ObserveGatewayAttempt(op, "transport_error")
				c.logger.Debug("gateway attempt failed", "url", attempt.URL, "error", err)
				break authLoop
			}
			if res.status >= 200 && res.status < 300 {
				c.metrics.ObserveGatewayAttempt(op, "success")
				return res, nil
			}
			c.metrics.ObserveGatewayAttempt(op, fmt.Sprintf("http_%d", res.status))
			if res.status == 404 && req.notFoundFinal {
				policy.observe(attempt)
				return nil, variantErr(ErrNotFound, "instance not present on gateway", policy.attempts)
			}
			if isRecipientRejected(res.status, res.body) {
				policy.observe(attempt)
				return nil, variantErr(ErrRecipientRejected, "upstream refused the recipient address", policy.attempts)
			}
			switch policy.observe(attempt) {
			case actionContinueAuth:
				continue
			case actionNextBase:
				break authLoop
			case actionStop:
				return nil, policy.classify()
			}
		}
	}
	return nil, policy.classify()
}

func (c *Client) doOnce(ctx context.Context, req request, base string, auth authVariant) (*response, Attempt, error) {
	fullURL := base + req.path
	auditURL := fullURL
	if auth.query != "" {
		fullURL += "?" + auth.query + "=" + url.QueryEscape(c.apiKey)
		auditURL += "?" + auth.query + "=REDACTED"
	}
	attempt := Attempt{Method: req.method, URL: auditURL, Auth: auth.label}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, req.method, fullURL, bodyReader)
	if err != nil {
		return nil, attempt, fmt.Errorf("gateway: build request: %w", err)
	}
	switch {
	case auth.bearer:
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	case auth.rawAuth:
		httpReq.Header.Set("Authorization", c.apiKey)
	case auth.header != "":
		httpReq.Header.Set(auth.header, c.apiKey)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, attempt, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, attempt, fmt.Errorf("gateway: read response: %w", err)
	}
	attempt.Status = resp.StatusCode
	return &response{status: resp.StatusCode, body: data}, attempt, nil
}

var recipientErrMarkers = []string{"number", "jid", "recipient", "not on whatsapp"}

// isRecipientRejected classifies the upstream error family that means "the
// address encoding is wrong but the request shape is right".
func isRecipientRejected(status int, body []byte) bool {
	if status != 400 && status != 422 {
		return false
	}
	msg := strings.ToLower(string(body))
	for _, marker := range recipientErrMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// parseConnectionState digs the session state out of the handful of response
// shapes different gateway versions produce.
func parseConnectionState(body []byte) (string, error) {
	var nested struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
		State     string `json:"state"`
		Status    string `json:"status"`
		Connected *bool  `json:"connected"`
	}
	if err := json.Unmarshal(body, &nested); err != nil {
		return "", fmt.Errorf("gateway: decode connection state: %w", err)
	}
	switch {
	case nested.Instance.State != "":
		return nested.Instance.State, nil
	case nested.State != "":
		return nested.State, nil
	case nested.Status != "":
		return nested.Status, nil
	case nested.Connected != nil:
		if *nested.Connected {
			return "open", nil
		}
		return "closed", nil
	}
	return "", errors.New("gateway: connection state missing from response")
}
