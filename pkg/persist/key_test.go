package persist

import (
	"errors"
	"testing"
)

func TestSessionKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  SessionKey
		want string
	}{
		{"simple", SessionKey{Namespace: "orders", Session: "abc"}, "scroll:orders:abc"},
		{"trimmed", SessionKey{Namespace: " orders ", Session: " abc\n"}, "scroll:orders:abc"},
		{"underscore kept", SessionKey{Namespace: "markets_10000002", Session: "a_b"}, "scroll:markets_10000002:a_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionKey_Validate(t *testing.T) {
	tests := []struct {
		key     SessionKey
		wantErr bool
	}{
		{SessionKey{Namespace: "orders", Session: "abc"}, false},
		{SessionKey{Namespace: "", Session: "abc"}, true},
		{SessionKey{Namespace: "orders", Session: "  "}, true},
		{SessionKey{Namespace: "orders", Session: "a_b"}, false},
		{SessionKey{Namespace: "orders", Session: "a:b"}, true},
		{SessionKey{Namespace: "markets:10000002", Session: "abc"}, true},
		{SessionKey{Namespace: "ord*", Session: "abc"}, true},
		{SessionKey{Namespace: "orders", Session: "s?"}, true},
		{SessionKey{Namespace: "orders", Session: "[x]"}, true},
		{SessionKey{Namespace: "orders", Session: `a\b`}, true},
	}

	for _, tt := range tests {
		err := tt.key.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Validate(%+v) error = %v, want ErrInvalidKey", tt.key, err)
		}
	}
}

func TestPattern(t *testing.T) {
	if got, want := pattern("orders"), "scroll:orders:*"; got != want {
		t.Errorf("pattern() = %q, want %q", got, want)
	}
}

func TestSessionKey_NoCollisions(t *testing.T) {
	// Distinct sessions never map onto one key.
	a := SessionKey{Namespace: "orders", Session: "a:b"}
	b := SessionKey{Namespace: "orders", Session: "a_b"}
	if a.Validate() == nil && b.Validate() == nil && a.String() == b.String() {
		t.Errorf("%+v and %+v share key %q", a, b, a.String())
	}
}
