package persist

import (
	"errors"
	"strings"
)

// ErrInvalidKey indicates an empty namespace or session, or one containing
// the key separator or a SCAN glob character.
var ErrInvalidKey = errors.New("invalid session key")

const keyPrefix = "scroll"

// reserved holds the key separator and the characters Redis SCAN MATCH
// treats as glob syntax.
const reserved = `:*?[]\`

// SessionKey identifies one stored snapshot.
type SessionKey struct {
	// Namespace groups sessions of one list, e.g. "orders".
	Namespace string

	// Session identifies one consumer of the list.
	Session string
}

// String generates the deterministic Redis key.
// Format: scroll:<namespace>:<session>
func (k SessionKey) String() string {
	return strings.Join([]string{keyPrefix, normalize(k.Namespace), normalize(k.Session)}, ":")
}

// Validate reports ErrInvalidKey unless both parts are non-empty after
// trimming and free of reserved characters. Parts are rejected rather than
// rewritten so that distinct sessions never share a key.
func (k SessionKey) Validate() error {
	if err := validatePart(k.Namespace); err != nil {
		return err
	}
	return validatePart(k.Session)
}

func validatePart(part string) error {
	p := normalize(part)
	if p == "" || strings.ContainsAny(p, reserved) {
		return ErrInvalidKey
	}
	return nil
}

// pattern matches every session of a namespace. The namespace must pass
// validatePart.
func pattern(namespace string) string {
	return strings.Join([]string{keyPrefix, normalize(namespace), "*"}, ":")
}

func normalize(part string) string {
	return strings.TrimSpace(part)
}
