package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// lookupString returns the first non-empty value among keys, formatting numbers as integers
// when they have no fractional part.
func lookupString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok || raw == nil {
			continue
		}

		var value string
		switch v := raw.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case float64:
			if v == float64(int64(v)) {
				value = strconv.FormatInt(int64(v), 10)
			} else {
				value = strconv.FormatFloat(v, 'f', -1, 64)
			}
		case int:
			value = strconv.Itoa(v)
		case int64:
			value = strconv.FormatInt(v, 10)
		default:
			continue
		}

		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func eventIDOrFallback(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func eventTypeOrDefault(eventType string) string {
	if eventType != "" {
		return eventType
	}
	return DefaultEventType
}

// withinTolerance reports whether ts lies in [now-tolerance, now+tolerance].
func withinTolerance(now time.Time, ts int64, tolerance time.Duration) bool {
	diff := now.Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(tolerance/time.Second)
}

func computeHMAC(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, part := range parts {
		_, _ = mac.Write(part)
	}
	return mac.Sum(nil)
}

func parseUnix(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &ts
}
