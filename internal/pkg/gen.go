package pkg

import "github.com/google/uuid"

// GenerateNewSessionID - generates a new unique sessionID.
func GenerateNewSessionID() string {
	return uuid.NewString()
}

// IsValidSessionID - reports whether id could have come from GenerateNewSessionID.
func IsValidSessionID(id string) bool {
	return uuid.Validate(id) == nil
}
