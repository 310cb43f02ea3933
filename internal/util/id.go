package util

import "github.com/google/uuid"

// NewID returns a random record/request identifier.
func NewID() string {
	return uuid.NewString()
}
