// Package utils provides small shared helpers: identifier generation,
// media-type detection, and a bounded worker pool used by batch uploads.
package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID v4 string.
func GenerateUUID() string {
	return uuid.New().String()
}

// IsValidUUID checks if a string is a valid UUID.
func IsValidUUID(uuidStr string) bool {
	_, err := uuid.Parse(uuidStr)
	return err == nil
}

// GenerateShortUUID generates a shorter UUID (first 8 characters).
// Only for non-critical identifiers such as logging correlation IDs
// and websocket client IDs.
func GenerateShortUUID() string {
	return uuid.New().String()[:8]
}
