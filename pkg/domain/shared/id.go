package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies a domain entity. It wraps a UUID so identifiers cannot be
// mixed up with other strings; conversion happens at the edges via String
// and IDFromString.
type ID struct {
	value uuid.UUID
}

// NewID returns a new random ID.
func NewID() ID {
	return ID{value: uuid.New()}
}

// IDFromString parses an ID from its canonical string form.
func IDFromString(s string) (ID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid id format: %w", err)
	}
	return ID{value: parsed}, nil
}

// String returns the canonical string form.
func (id ID) String() string {
	return id.value.String()
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equals reports whether two IDs identify the same entity.
func (id ID) Equals(other ID) bool {
	return id.value == other.value
}
