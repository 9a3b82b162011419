package privmsg

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MessageLimits holds all message validation limits.
// Used to pass limits to validation functions.
type MessageLimits struct {
	MaxTitleLength    int
	MaxBodySize       int
	MaxContextLength  int
	MaxRecipientCount int
	MaxParamsSize     int
	MaxParamsKeys     int
}

// MaxParamsKeyLength is the maximum length of a params key.
const MaxParamsKeyLength = 256

// DefaultLimits returns the default message limits.
func DefaultLimits() MessageLimits {
	return MessageLimits{
		MaxTitleLength:    DefaultMaxTitleLength,
		MaxBodySize:       DefaultMaxBodySize,
		MaxContextLength:  DefaultMaxContextLength,
		MaxRecipientCount: DefaultMaxRecipientCount,
		MaxParamsSize:     DefaultMaxParamsSize,
		MaxParamsKeys:     DefaultMaxParamsKeys,
	}
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateTitle checks that title is present, short enough and free of
// control characters.
func ValidateTitle(title string, limits MessageLimits) error {
	if strings.TrimSpace(title) == "" {
		return invalid("title", "is required")
	}
	if !utf8.ValidString(title) {
		return invalid("title", "contains invalid UTF-8")
	}
	if n := utf8.RuneCountInString(title); n > limits.MaxTitleLength {
		return invalid("title", "length %d exceeds max %d", n, limits.MaxTitleLength)
	}
	for _, r := range title {
		if unicode.IsControl(r) && r != '\t' {
			return invalid("title", "contains control character U+%04X", r)
		}
	}
	return nil
}

// ValidateBody checks the body size and encoding. An empty body is valid.
func ValidateBody(body string, limits MessageLimits) error {
	if len(body) > limits.MaxBodySize {
		return invalid("body", "size %d exceeds max %d bytes", len(body), limits.MaxBodySize)
	}
	if !utf8.ValidString(body) {
		return invalid("body", "contains invalid UTF-8")
	}
	if strings.ContainsRune(body, '\x00') {
		return invalid("body", "contains null bytes")
	}
	return nil
}

// ValidateContext checks the opaque context string.
func ValidateContext(context string, limits MessageLimits) error {
	if !utf8.ValidString(context) {
		return invalid("context", "contains invalid UTF-8")
	}
	if n := utf8.RuneCountInString(context); n > limits.MaxContextLength {
		return invalid("context", "length %d exceeds max %d", n, limits.MaxContextLength)
	}
	for _, r := range context {
		if unicode.IsControl(r) {
			return invalid("context", "contains control character U+%04X", r)
		}
	}
	return nil
}

// ValidateParams checks key count, key length and the JSON size of params.
func ValidateParams(params map[string]any, limits MessageLimits) error {
	if params == nil {
		return nil
	}
	if len(params) > limits.MaxParamsKeys {
		return invalid("params", "too many keys (%d > %d)", len(params), limits.MaxParamsKeys)
	}
	for key := range params {
		if key == "" {
			return invalid("params", "empty key not allowed")
		}
		if len(key) > MaxParamsKeyLength {
			return invalid("params", "key %.50q... exceeds max length %d", key, MaxParamsKeyLength)
		}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return invalid("params", "cannot serialize: %v", err)
	}
	if len(data) > limits.MaxParamsSize {
		return invalid("params", "size %d exceeds max %d bytes", len(data), limits.MaxParamsSize)
	}
	return nil
}

// ValidateRecipients checks the shape of a recipient list. Existence is
// checked against the directory at send time.
func ValidateRecipients(recipientIDs []string, limits MessageLimits) error {
	if len(recipientIDs) == 0 {
		return &ValidationError{Field: "recipient_ids", Message: "at least one recipient is required", Err: ErrEmptyRecipients}
	}
	if len(recipientIDs) > limits.MaxRecipientCount {
		return invalid("recipient_ids", "count %d exceeds max %d", len(recipientIDs), limits.MaxRecipientCount)
	}
	for _, id := range recipientIDs {
		if !isValidUserID(id) {
			return &ValidationError{Field: "recipient_ids", Message: fmt.Sprintf("invalid recipient %q", id), Err: ErrInvalidUserID}
		}
	}
	return nil
}

// validateContent checks everything but the recipients.
func validateContent(title, body, context string, params map[string]any, limits MessageLimits) error {
	return collect(
		ValidateTitle(title, limits),
		ValidateBody(body, limits),
		ValidateContext(context, limits),
		ValidateParams(params, limits),
	)
}

// collect gathers validation failures into one ValidationErrors.
// Errors that are not validation errors are returned as is.
func collect(errs ...error) error {
	var out ValidationErrors
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		out = append(out, ve)
	}
	return out.err()
}

// dedupe returns ids without duplicates, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique
}
