package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix identifies gatehouse API keys
	APIKeyPrefix = "cal_"
	// APIKeyLength is the number of random bytes (32 bytes = 256 bits)
	APIKeyLength = 32
	// displayPrefixLength is how many encoded characters ExtractPrefix keeps
	displayPrefixLength = 8
)

// GenerateAPIKey creates a new API key.
// Format: cal_<base64url(32 random bytes)>
func GenerateAPIKey() (key string, keyHash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	key = APIKeyPrefix + encoded

	return key, HashAPIKey(key), ExtractPrefix(key), nil
}

// HashAPIKey computes the SHA256 hash of a key for lookup
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// IsAPIKey reports whether a bearer credential looks like an API key
func IsAPIKey(credential string) bool {
	return strings.HasPrefix(credential, APIKeyPrefix)
}

// ValidateAPIKeyFormat checks that key has the prefix and a base64url body
func ValidateAPIKeyFormat(key string) error {
	if !IsAPIKey(key) {
		return fmt.Errorf("api key must start with %q", APIKeyPrefix)
	}

	encoded := strings.TrimPrefix(key, APIKeyPrefix)
	if len(encoded) == 0 {
		return fmt.Errorf("api key is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid api key encoding: %w", err)
	}

	return nil
}

// ExtractPrefix returns the displayable start of a key
func ExtractPrefix(key string) string {
	if !IsAPIKey(key) {
		return ""
	}

	encoded := strings.TrimPrefix(key, APIKeyPrefix)
	if len(encoded) >= displayPrefixLength {
		return APIKeyPrefix + encoded[:displayPrefixLength]
	}

	return key
}
