package verifier

import (
	"crypto/hmac"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// Generic signature headers.
const (
	WebhookSignatureHeader = "X-Webhook-Signature"
	WebhookTimestampHeader = "X-Webhook-Timestamp"
)

const signaturePrefix = "sha256="

// WebhookVerifier verifies the generic scheme: hex HMAC-SHA256 over "{t}.{payload}" when a
// timestamp header is sent, otherwise over the payload alone.
type WebhookVerifier struct {
	now func() time.Time
}

// NewWebhookVerifier creates a WebhookVerifier.
func NewWebhookVerifier(opts ...Option) *WebhookVerifier {
	o := buildOptions(opts)
	return &WebhookVerifier{now: o.now}
}

// VerifySignature checks the signature and, when timestamped, the provider tolerance.
func (v *WebhookVerifier) VerifySignature(payload []byte, headers http.Header, provider *domain.Provider) bool {
	if provider.SkipsSignature() {
		return true
	}

	signature := strings.TrimSpace(headers.Get(WebhookSignatureHeader))
	signature = strings.ToLower(strings.TrimPrefix(signature, signaturePrefix))
	if signature == "" {
		return false
	}

	var expected string
	if rawTimestamp := strings.TrimSpace(headers.Get(WebhookTimestampHeader)); rawTimestamp != "" {
		ts := parseUnix(rawTimestamp)
		if ts == nil {
			return false
		}
		if provider.TimestampTolerance > 0 && !withinTolerance(v.now(), *ts, provider.TimestampTolerance) {
			return false
		}
		expected = SignWebhook(provider.Secret, rawTimestamp, payload)
	} else {
		expected = hex.EncodeToString(computeHMAC(provider.Secret, payload))
	}

	return hmac.Equal([]byte(signature), []byte(expected))
}

// ExtractEventID returns the first of "id", "event_id", "request_id" and "external_id".
func (v *WebhookVerifier) ExtractEventID(payload map[string]any) string {
	return eventIDOrFallback(lookupString(payload, "id", "event_id", "request_id", "external_id"))
}

// ExtractEventType returns the first of "type", "event_type" and "event".
func (v *WebhookVerifier) ExtractEventType(payload map[string]any) string {
	return eventTypeOrDefault(lookupString(payload, "type", "event_type", "event"))
}

// ExtractTimestamp parses the timestamp header.
func (v *WebhookVerifier) ExtractTimestamp(headers http.Header) *int64 {
	return parseUnix(headers.Get(WebhookTimestampHeader))
}

// SignWebhook computes the hex signature of payload at the given unix timestamp string.
// It is also used to sign outgoing deliveries.
func SignWebhook(secret, timestamp string, payload []byte) string {
	return hex.EncodeToString(computeHMAC(secret, []byte(timestamp), []byte("."), payload))
}

// SignWebhookAt is SignWebhook for a time value.
func SignWebhookAt(secret string, at time.Time, payload []byte) (string, string) {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return timestamp, SignWebhook(secret, timestamp, payload)
}
