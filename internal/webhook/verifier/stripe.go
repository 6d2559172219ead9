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

// StripeSignatureHeader carries "t=<unix>,v1=<hex>[,v1=...][,v0=...]".
const StripeSignatureHeader = "Stripe-Signature"

// StripeVerifier verifies Stripe-style signatures: HMAC-SHA256(secret, "{t}.{payload}").
type StripeVerifier struct {
	now func() time.Time
}

// NewStripeVerifier creates a StripeVerifier.
func NewStripeVerifier(opts ...Option) *StripeVerifier {
	o := buildOptions(opts)
	return &StripeVerifier{now: o.now}
}

// VerifySignature accepts the payload when any v1 signature matches and, when the provider has a
// tolerance, the signed timestamp is within it.
func (v *StripeVerifier) VerifySignature(payload []byte, headers http.Header, provider *domain.Provider) bool {
	if provider.SkipsSignature() {
		return true
	}

	header := strings.TrimSpace(headers.Get(StripeSignatureHeader))
	if header == "" {
		return false
	}

	timestamp, signatures := parseStripeHeader(header)
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	if provider.TimestampTolerance > 0 {
		ts := parseUnix(timestamp)
		if ts == nil || !withinTolerance(v.now(), *ts, provider.TimestampTolerance) {
			return false
		}
	}

	expected := []byte(hex.EncodeToString(computeHMAC(provider.Secret, []byte(timestamp), []byte("."), payload)))

	matched := false
	for _, signature := range signatures {
		if hmac.Equal([]byte(strings.ToLower(signature)), expected) {
			matched = true
		}
	}
	return matched
}

// ExtractEventID returns the "id" field.
func (v *StripeVerifier) ExtractEventID(payload map[string]any) string {
	return eventIDOrFallback(lookupString(payload, "id"))
}

// ExtractEventType returns the "type" field.
func (v *StripeVerifier) ExtractEventType(payload map[string]any) string {
	return eventTypeOrDefault(lookupString(payload, "type"))
}

// ExtractTimestamp returns the "t" element of the signature header.
func (v *StripeVerifier) ExtractTimestamp(headers http.Header) *int64 {
	timestamp, _ := parseStripeHeader(headers.Get(StripeSignatureHeader))
	return parseUnix(timestamp)
}

// parseStripeHeader splits the header into its timestamp and v1 signatures.
func parseStripeHeader(header string) (string, []string) {
	var timestamp string
	var signatures []string

	for _, item := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}

	return timestamp, signatures
}

// SignStripe builds a Stripe-Signature header value for payload at ts.
func SignStripe(secret string, ts int64, payload []byte) string {
	t := strconv.FormatInt(ts, 10)
	return "t=" + t + ",v1=" + hex.EncodeToString(computeHMAC(secret, []byte(t), []byte("."), payload))
}
