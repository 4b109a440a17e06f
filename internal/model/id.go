package model

import "github.com/google/uuid"

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether s is a well-formed identifier in canonical
// hyphenated form.
func ValidID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
