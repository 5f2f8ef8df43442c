package taler

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

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/abilian/taler-go/internal/obs"
)

const (
	// DefaultCurrency applies when the configuration names none.
	DefaultCurrency = "EUR"
	// DefaultTimeout bounds each backend round trip when no transport is
	// injected.
	DefaultTimeout = 10 * time.Second

	tracerName       = "taler.Client"
	maxResponseBytes = 1 << 20
)

// Doer executes a single HTTP request. *http.Client satisfies it, as does
// the resilience wrapper. The client never retries; wrapping the transport
// is how callers opt into their own policies.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config carries the immutable settings for a Client.
type Config struct {
	// BackendBaseURL is the merchant backend root, e.g.
	// "https://merchant.example.com".
	BackendBaseURL string
	// APIKey is sent verbatim as "Authorization: Basic <APIKey>".
	APIKey string
	// Currency applies to amounts that do not name one. Defaults to EUR.
	Currency string
	// WebhookSecret keys webhook signature verification. Optional; without
	// it every signature verification fails.
	WebhookSecret string
	// Timeout bounds each request when no HTTP transport is injected.
	Timeout time.Duration
	// HTTP overrides the transport. Optional.
	HTTP Doer
	// Logger receives structured operation logs. Optional.
	Logger zerolog.Logger
}

// Client talks to a Taler merchant backend. It holds configuration only, no
// per-call state, and is safe for concurrent use by multiple goroutines.
type Client struct {
	base     *url.URL
	apiKey   string
	currency string
	secret   string
	http     Doer
	logger   zerolog.Logger
}

// New validates the configuration and constructs a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BackendBaseURL)
	if base == "" {
		return nil, errors.New("taler: backend base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("taler: invalid backend base url %q", base)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("taler: api key is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	doer := cfg.HTTP
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		doer = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		base:     parsed,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		currency: currency,
		secret:   cfg.WebhookSecret,
		http:     doer,
		logger:   cfg.Logger,
	}, nil
}

// Currency returns the default currency applied to amounts without one.
func (c *Client) Currency() string { return c.currency }

type orderBody struct {
	Order       orderDetails `json:"order"`
	CreateToken bool         `json:"create_token"`
}

type orderDetails struct {
	Summary          string         `json:"summary,omitempty"`
	OrderID          string         `json:"order_id,omitempty"`
	Amount           string         `json:"amount"`
	PublicReorderURL string         `json:"public_reorder_url,omitempty"`
	FulfillmentURL   string         `json:"fulfillment_url,omitempty"`
	RefundDeadline   *Timestamp     `json:"refund_deadline,omitempty"`
	PayDeadline      *Timestamp     `json:"pay_deadline,omitempty"`
	AutoRefund       *Timestamp     `json:"auto_refund,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type refundBody struct {
	Refund string `json:"refund,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// CreateOrder submits a new order. The amount's currency falls back to the
// client default; any non-2xx status is a *BackendError.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	const op = "create_order"
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Client.CreateOrder")
	defer span.End()

	amount := req.Amount.withCurrency(c.currency)
	if err := amount.validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("taler.amount", amount.String()))

	body := orderBody{
		Order: orderDetails{
			Summary:          req.Summary,
			OrderID:          req.OrderID,
			Amount:           amount.String(),
			PublicReorderURL: req.PublicReorderURL,
			FulfillmentURL:   req.FulfillmentURL,
			RefundDeadline:   req.RefundDeadline,
			PayDeadline:      req.PayDeadline,
			AutoRefund:       req.AutoRefund,
			Metadata:         req.Metadata,
		},
		CreateToken: true,
	}
	status, payload, err := c.do(ctx, op, http.MethodPost, "/private/orders", body)
	if err != nil {
		c.record(op, resultFor(err))
		span.RecordError(err)
		return nil, err
	}
	if !is2xx(status) {
		backendErr := &BackendError{Op: op, Status: status, Body: payload}
		c.record(op, "backend_error")
		span.RecordError(backendErr)
		c.logger.Error().Int("status", status).Msg("create order rejected by backend")
		return nil, backendErr
	}
	result, err := decodeOrder(op, payload, "")
	if err != nil {
		c.record(op, "malformed_response")
		span.RecordError(err)
		return nil, err
	}
	c.record(op, "success")
	span.SetAttributes(attribute.String("taler.order_id", result.OrderID))
	c.logger.Debug().Str("order_id", result.OrderID).Msg("order created")
	return result, nil
}

// GetOrder fetches an order. A 404 yields (nil, nil); the order simply does
// not exist on the backend.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	const op = "get_order"
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Client.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.String("taler.order_id", orderID))

	status, payload, err := c.fetchOrder(ctx, op, orderID)
	if err != nil {
		c.record(op, resultFor(err))
		span.RecordError(err)
		return nil, err
	}
	switch classify(status) {
	case outcomeNotFound:
		c.record(op, "not_found")
		return nil, nil
	case outcomeBackendError:
		backendErr := &BackendError{Op: op, Status: status, Body: payload}
		c.record(op, "backend_error")
		span.RecordError(backendErr)
		return nil, backendErr
	}
	result, err := decodeOrder(op, payload, orderID)
	if err != nil {
		c.record(op, "malformed_response")
		span.RecordError(err)
		return nil, err
	}
	c.record(op, "success")
	return result, nil
}

// GetPaymentURL returns the URI the payer should be redirected to. It is
// empty when the order does not exist or is not payable (already paid,
// expired); both are expected outcomes, not errors.
func (c *Client) GetPaymentURL(ctx context.Context, orderID string) (string, error) {
	const op = "get_payment_url"
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Client.GetPaymentURL")
	defer span.End()
	span.SetAttributes(attribute.String("taler.order_id", orderID))

	status, payload, err := c.fetchOrder(ctx, op, orderID)
	if err != nil {
		c.record(op, resultFor(err))
		span.RecordError(err)
		return "", err
	}
	switch classify(status) {
	case outcomeNotFound:
		c.record(op, "not_found")
		return "", nil
	case outcomeBackendError:
		backendErr := &BackendError{Op: op, Status: status, Body: payload}
		c.record(op, "backend_error")
		span.RecordError(backendErr)
		return "", backendErr
	}
	result, err := decodeOrder(op, payload, orderID)
	if err != nil {
		c.record(op, "malformed_response")
		span.RecordError(err)
		return "", err
	}
	c.record(op, "success")
	return result.PaymentURI, nil
}

// ProcessRefund asks the backend to refund an order. A 404 yields
// (nil, nil); any other non-2xx status is a *BackendError.
func (c *Client) ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	const op = "process_refund"
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Client.ProcessRefund")
	defer span.End()

	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, errors.New("taler: order id is required")
	}
	span.SetAttributes(attribute.String("taler.order_id", orderID))

	path := fmt.Sprintf("/private/orders/%s/refund", url.PathEscape(orderID))
	status, payload, err := c.do(ctx, op, http.MethodPost, path, refundBody{
		Refund: strings.TrimSpace(req.Amount),
		Reason: req.Reason,
	})
	if err != nil {
		c.record(op, resultFor(err))
		span.RecordError(err)
		return nil, err
	}
	switch classify(status) {
	case outcomeNotFound:
		c.record(op, "not_found")
		return nil, nil
	case outcomeBackendError:
		backendErr := &BackendError{Op: op, Status: status, Body: payload}
		c.record(op, "backend_error")
		span.RecordError(backendErr)
		c.logger.Error().Int("status", status).Str("order_id", orderID).Msg("refund rejected by backend")
		return nil, backendErr
	}
	var body struct {
		RefundID string `json:"refund_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		c.record(op, "malformed_response")
		return nil, &MalformedResponseError{Op: op, Reason: "invalid json", Err: err}
	}
	if strings.TrimSpace(body.RefundID) == "" {
		c.record(op, "malformed_response")
		return nil, &MalformedResponseError{Op: op, Reason: "refund_id missing"}
	}
	c.record(op, "success")
	c.logger.Debug().Str("order_id", orderID).Str("refund_id", body.RefundID).Msg("refund processed")
	return &RefundResult{RefundID: body.RefundID, Raw: rawCopy(payload)}, nil
}

func (c *Client) fetchOrder(ctx context.Context, op, orderID string) (int, []byte, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return 0, nil, errors.New("taler: order id is required")
	}
	path := "/private/orders/" + url.PathEscape(orderID)
	return c.do(ctx, op, http.MethodGet, path, nil)
}

// do performs one authenticated round trip and returns the status and raw
// body. Network failures surface as *TransportError; status interpretation
// is the caller's job.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (int, []byte, error) {
	endpoint := c.base.JoinPath(path).String()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("taler: %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("taler: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, Err: err}
	}
	return resp.StatusCode, payload, nil
}

// outcome classifies a backend status for operations where 404 is an
// expected empty result rather than a failure.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeNotFound
	outcomeBackendError
)

func classify(status int) outcome {
	switch {
	case is2xx(status):
		return outcomeOK
	case status == http.StatusNotFound:
		return outcomeNotFound
	default:
		return outcomeBackendError
	}
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

// decodeOrder reads the fields the client interprets and keeps the rest
// opaque. fallbackID fills OrderID for GET responses where some backend
// versions omit it; create responses pass "" and must include it.
func decodeOrder(op string, payload []byte, fallbackID string) (*OrderResult, error) {
	var body struct {
		OrderID            string `json:"order_id"`
		TalerPayURI        string `json:"taler_pay_uri"`
		PaymentRedirectURL string `json:"payment_redirect_url"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &MalformedResponseError{Op: op, Reason: "invalid json", Err: err}
	}
	orderID := strings.TrimSpace(body.OrderID)
	if orderID == "" {
		orderID = fallbackID
	}
	if orderID == "" {
		return nil, &MalformedResponseError{Op: op, Reason: "order_id missing"}
	}
	uri := body.TalerPayURI
	if uri == "" {
		uri = body.PaymentRedirectURL
	}
	return &OrderResult{OrderID: orderID, PaymentURI: uri, Raw: rawCopy(payload)}, nil
}

func rawCopy(payload []byte) json.RawMessage {
	return append(json.RawMessage(nil), payload...)
}

func (c *Client) record(op, result string) {
	if obs.TalerRequestTotal != nil {
		obs.TalerRequestTotal.WithLabelValues(op, result).Inc()
	}
}

func resultFor(err error) string {
	var transport *TransportError
	if errors.As(err, &transport) {
		return "transport_error"
	}
	return "error"
}
