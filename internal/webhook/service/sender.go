package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/verifier"
)

const (
	defaultConnectTimeout  = 5 * time.Second
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 64 * 1024
	defaultUserAgent       = "captain-hook/1.0"
)

// Delivery headers.
const (
	HeaderWebhookID    = "X-Webhook-Id"
	HeaderWebhookEvent = "X-Webhook-Event"
)

// SenderConfig holds the HTTP sender settings.
type SenderConfig struct {
	ConnectTimeout  time.Duration
	Timeout         time.Duration
	MaxResponseBody int64
	UserAgent       string
}

// DeliveryRequest is one outbound POST.
type DeliveryRequest struct {
	URL       string
	EventID   string
	EventType string
	// Headers are applied in order, later maps overriding earlier ones.
	Headers []map[string]string
	Body    []byte
	// Secret enables the X-Webhook-Timestamp/X-Webhook-Signature pair when set.
	Secret string
}

// DeliveryResponse is what the destination answered.
type DeliveryResponse struct {
	StatusCode int
	Body       string
	Duration   time.Duration
}

// Success reports a 2xx response.
func (r *DeliveryResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Redirect reports a 3xx response. Redirects are never followed.
func (r *DeliveryResponse) Redirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// ClientError reports a 4xx response.
func (r *DeliveryResponse) ClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// Sender posts signed deliveries through a client whose dialer refuses internal addresses.
type Sender struct {
	client *http.Client
	guard  *URLGuard
	config SenderConfig
	now    func() time.Time
}

// NewSender creates a Sender.
func NewSender(config SenderConfig, guard *URLGuard) *Sender {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxResponseBody <= 0 {
		config.MaxResponseBody = defaultMaxResponseBody
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	dialer := &net.Dialer{
		Timeout: config.ConnectTimeout,
		Control: guard.Control,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   config.ConnectTimeout,
		ResponseHeaderTimeout: config.Timeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Sender{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		guard:  guard,
		config: config,
		now:    time.Now,
	}
}

// Send validates the destination and posts the request. A non-nil error means no response was
// received; HTTP error statuses are reported through DeliveryResponse.
func (s *Sender) Send(ctx context.Context, req DeliveryRequest) (*DeliveryResponse, error) {
	target, err := s.guard.Check(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build delivery request: %w", err)
	}

	for _, headers := range req.Headers {
		for name, value := range headers {
			httpReq.Header.Set(name, value)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", s.config.UserAgent)
	if req.EventID != "" {
		httpReq.Header.Set(HeaderWebhookID, req.EventID)
	}
	if req.EventType != "" {
		httpReq.Header.Set(HeaderWebhookEvent, req.EventType)
	}
	if req.Secret != "" {
		timestamp, signature := verifier.SignWebhookAt(req.Secret, s.now(), req.Body)
		httpReq.Header.Set(verifier.WebhookTimestampHeader, timestamp)
		httpReq.Header.Set(verifier.WebhookSignatureHeader, "sha256="+signature)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxResponseBody))

	return &DeliveryResponse{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Duration:   time.Since(start),
	}, nil
}
