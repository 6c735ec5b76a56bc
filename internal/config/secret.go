package config

import (
	"crypto/subtle"
	"fmt"
)

// ErrMissing is returned when a required setting is not configured.
type ErrMissing struct {
	Key string
}

func (e ErrMissing) Error() string {
	return fmt.Sprintf("missing satellite configuration: %s", e.Key)
}

// Secret holds a credential. It never prints its value.
type Secret string

func (s Secret) Empty() bool {
	return s == ""
}

// Reveal returns the raw value. Only call it where the value leaves the process
// (Authorization header, driver DSN).
func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "***"
	}
	return string(s[:3]) + "***"
}

func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// Equal compares in constant time. An empty secret never matches anything.
func (s Secret) Equal(presented string) bool {
	if s == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s), []byte(presented)) == 1
}
