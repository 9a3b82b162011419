package privmsg

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTitle(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name      string
		title     string
		wantErr   bool
		errString string
	}{
		{
			name:  "valid title",
			title: "Hello World",
		},
		{
			name:  "valid title with tab",
			title: "Hello\tWorld",
		},
		{
			name:      "empty title",
			title:     "",
			wantErr:   true,
			errString: "is required",
		},
		{
			name:      "whitespace only title",
			title:     "   \t  ",
			wantErr:   true,
			errString: "is required",
		},
		{
			name:      "title with newline",
			title:     "Hello\nWorld",
			wantErr:   true,
			errString: "control character",
		},
		{
			name:      "title with null byte",
			title:     "Hello\x00World",
			wantErr:   true,
			errString: "control character",
		},
		{
			name:      "invalid UTF-8",
			title:     "bad \xff",
			wantErr:   true,
			errString: "UTF-8",
		},
		{
			name:  "title at max length",
			title: strings.Repeat("é", DefaultMaxTitleLength),
		},
		{
			name:      "title exceeds max length",
			title:     strings.Repeat("a", DefaultMaxTitleLength+1),
			wantErr:   true,
			errString: "exceeds max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTitle(tt.title, limits)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("expected ErrInvalidMessage, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errString) {
				t.Errorf("expected error containing %q, got %q", tt.errString, err.Error())
			}
		})
	}
}

func TestValidateBody(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxBodySize = 16

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"empty body", "", false},
		{"multi line body", "line 1\nline 2", false},
		{"at max size", strings.Repeat("a", 16), false},
		{"exceeds max size", strings.Repeat("a", 17), true},
		{"null byte", "a\x00b", true},
		{"invalid UTF-8", "\xc3\x28", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBody(tt.body, limits)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBody() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateContext(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxContextLength = 8

	tests := []struct {
		name    string
		context string
		wantErr bool
	}{
		{"empty", "", false},
		{"path like", "order/42", false},
		{"too long", "order/4242", true},
		{"newline", "a\nb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContext(tt.context, limits)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateParams(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxParamsKeys = 2
	limits.MaxParamsSize = 32

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"nil params", nil, false},
		{"small params", map[string]any{"id": 1}, false},
		{"too many keys", map[string]any{"a": 1, "b": 2, "c": 3}, true},
		{"empty key", map[string]any{"": 1}, true},
		{"long key", map[string]any{strings.Repeat("k", MaxParamsKeyLength+1): 1}, true},
		{"too large", map[string]any{"a": strings.Repeat("x", 40)}, true},
		{"not serializable", map[string]any{"ch": make(chan int)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.params, limits)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRecipients(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxRecipientCount = 2

	tests := []struct {
		name    string
		ids     []string
		wantErr error
	}{
		{"single recipient", []string{"bob"}, nil},
		{"two recipients", []string{"bob", "carol"}, nil},
		{"empty list", nil, ErrEmptyRecipients},
		{"too many", []string{"bob", "carol", "dave"}, ErrInvalidMessage},
		{"invalid id", []string{"bob", "not valid"}, ErrInvalidUserID},
		{"empty id", []string{""}, ErrInvalidUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecipients(tt.ids, limits)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateContent(t *testing.T) {
	limits := DefaultLimits()

	t.Run("reports every failing field", func(t *testing.T) {
		err := validateContent("", "a\x00", "x\ny", map[string]any{"": 1}, limits)
		var ve ValidationErrors
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationErrors, got %v", err)
		}
		want := []string{"title", "body", "context", "params"}
		got := ve.Fields()
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("expected fields %v, got %v", want, got)
		}
	})

	t.Run("valid content", func(t *testing.T) {
		if err := validateContent("Hi", "", "", nil, limits); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("foreign errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		if err := collect(nil, boom, invalid("title", "bad")); err != boom {
			t.Errorf("expected boom, got %v", err)
		}
	})
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"bob", "carol", "bob", "dave", "carol"})
	if strings.Join(got, ",") != "bob,carol,dave" {
		t.Errorf("unexpected result %v", got)
	}
	if got := dedupe(nil); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.MaxTitleLength != DefaultMaxTitleLength {
		t.Errorf("expected MaxTitleLength %d, got %d", DefaultMaxTitleLength, limits.MaxTitleLength)
	}
	if limits.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("expected MaxBodySize %d, got %d", DefaultMaxBodySize, limits.MaxBodySize)
	}
	if limits.MaxContextLength != DefaultMaxContextLength {
		t.Errorf("expected MaxContextLength %d, got %d", DefaultMaxContextLength, limits.MaxContextLength)
	}
	if limits.MaxRecipientCount != DefaultMaxRecipientCount {
		t.Errorf("expected MaxRecipientCount %d, got %d", DefaultMaxRecipientCount, limits.MaxRecipientCount)
	}
	if limits.MaxParamsSize != DefaultMaxParamsSize {
		t.Errorf("expected MaxParamsSize %d, got %d", DefaultMaxParamsSize, limits.MaxParamsSize)
	}
	if limits.MaxParamsKeys != DefaultMaxParamsKeys {
		t.Errorf("expected MaxParamsKeys %d, got %d", DefaultMaxParamsKeys, limits.MaxParamsKeys)
	}
}
