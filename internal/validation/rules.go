// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/bowerbird-app/captain-hook-sub004/internal/errors"
)

var (
	// providerNameRegex allows lowercase letters, digits and underscores, starting with a letter
	providerNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// ProviderName validates the lowercase/underscore provider name format
var ProviderName = validation.NewStringRuleWithError(
	func(s string) bool {
		return providerNameRegex.MatchString(s)
	},
	validation.NewError(
		"validation_provider_name",
		"must start with a lowercase letter and contain only lowercase letters, digits and underscores",
	),
)

// HTTPURL validates an absolute http or https URL with a host
var HTTPURL = validation.NewStringRuleWithError(
	func(s string) bool {
		u, err := url.Parse(s)
		if err != nil {
			return false
		}
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	},
	validation.NewError("validation_http_url", "must be an absolute http or https URL"),
)

// JSONObject validates that a byte slice or json.RawMessage holds a JSON object
var JSONObject = validation.By(func(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		return validation.NewError("validation_json_object_type", "must be raw JSON")
	}
	if len(raw) == 0 {
		return nil // Let Required handle empty payloads
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return validation.NewError("validation_json_object", "must be a JSON object")
	}
	return nil
})

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
