package verifier

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

func TestSquareVerifier(t *testing.T) {
	v := NewSquareVerifier()
	payload := []byte(`{"event_id":"sq_1","type":"payment.updated"}`)
	provider := &domain.Provider{
		Name:       "square",
		Secret:     "square_secret",
		Verifier:   NameSquare,
		WebhookURL: "https://hooks.example.com/webhooks/square/tok",
	}

	headersWith := func(sig string) http.Header {
		h := http.Header{}
		h.Set(SquareSignatureHeader, sig)
		return h
	}

	t.Run("Success_ValidSignature", func(t *testing.T) {
		sig := SignSquare(provider.Secret, provider.WebhookURL, payload)
		assert.True(t, v.VerifySignature(payload, headersWith(sig), provider))
	})

	t.Run("Error_URLIsPartOfSignature", func(t *testing.T) {
		sig := SignSquare(provider.Secret, "https://other.example.com", payload)
		assert.False(t, v.VerifySignature(payload, headersWith(sig), provider))
	})

	t.Run("Error_TamperedPayload", func(t *testing.T) {
		sig := SignSquare(provider.Secret, provider.WebhookURL, payload)
		assert.False(t, v.VerifySignature([]byte(`{"event_id":"sq_2"}`), headersWith(sig), provider))
	})

	t.Run("Error_MissingHeader", func(t *testing.T) {
		assert.False(t, v.VerifySignature(payload, http.Header{}, provider))
	})

	t.Run("Success_Extract", func(t *testing.T) {
		assert.Equal(t, "sq_1", v.ExtractEventID(map[string]any{"event_id": "sq_1", "id": "other"}))
		assert.Equal(t, "fallback", v.ExtractEventID(map[string]any{"id": "fallback"}))
		assert.Equal(t, "payment.updated", v.ExtractEventType(map[string]any{"type": "payment.updated"}))
		assert.Nil(t, v.ExtractTimestamp(headersWith("x")))
	})
}
