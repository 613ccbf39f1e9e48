package utils

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for connection and message ids.
func NewID() string {
	return uuid.NewString()
}
