// Package id provides identifier generation for persisted records.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// UUID generates a random (v4) UUID string.
func UUID() string {
	return uuid.NewString()
}

// Short generates a 16 character hex identifier.
// Suitable for key ids and other user-facing handles where brevity matters.
func Short() string {
	u := uuid.New()
	return strings.ReplaceAll(u.String(), "-", "")[:16]
}
