package random

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Bytes returns length cryptographically random bytes.
func Bytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return bytes, nil
}

// String returns a hex-encoded random string built from length random bytes.
func String(length int) (string, error) {
	bytes, err := Bytes(length)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// URLSafeString returns an unpadded base64url random string built from length
// random bytes. Suitable for values that travel in query parameters, such as
// authorization codes.
func URLSafeString(length int) (string, error) {
	bytes, err := Bytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
