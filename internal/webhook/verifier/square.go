package verifier

import (
	"crypto/hmac"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// SquareSignatureHeader carries Base64(HMAC-SHA256(secret, notification_url + payload)).
const SquareSignatureHeader = "X-Square-Hmacsha256-Signature"

// SquareVerifier verifies Square-style signatures over the provider webhook URL and payload.
// Square does not sign a timestamp.
type SquareVerifier struct{}

// NewSquareVerifier creates a SquareVerifier.
func NewSquareVerifier() *SquareVerifier {
	return &SquareVerifier{}
}

// VerifySignature compares the header to the expected Base64 digest.
func (v *SquareVerifier) VerifySignature(payload []byte, headers http.Header, provider *domain.Provider) bool {
	if provider.SkipsSignature() {
		return true
	}

	signature := strings.TrimSpace(headers.Get(SquareSignatureHeader))
	if signature == "" {
		return false
	}

	return hmac.Equal([]byte(signature), []byte(SignSquare(provider.Secret, provider.WebhookURL, payload)))
}

// ExtractEventID returns the "event_id" field, then "id".
func (v *SquareVerifier) ExtractEventID(payload map[string]any) string {
	return eventIDOrFallback(lookupString(payload, "event_id", "id"))
}

// ExtractEventType returns the "type" field.
func (v *SquareVerifier) ExtractEventType(payload map[string]any) string {
	return eventTypeOrDefault(lookupString(payload, "type"))
}

// ExtractTimestamp always returns nil.
func (v *SquareVerifier) ExtractTimestamp(http.Header) *int64 {
	return nil
}

// SignSquare computes the Square signature for payload delivered to notificationURL.
func SignSquare(secret, notificationURL string, payload []byte) string {
	return base64.StdEncoding.EncodeToString(computeHMAC(secret, []byte(notificationURL), payload))
}
