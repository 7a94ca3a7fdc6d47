package utils

import "github.com/google/uuid"

// GenerateID generates a unique ID for a fitting run
func GenerateID() string {
	return uuid.NewString()
}
