package registry

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const (
	sessionIDCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	sessionIDLength  = 8
	passcodeLength   = 6
)

// newSessionID returns an 8-character alphanumeric public identifier drawn
// from crypto/rand.
func newSessionID() (string, error) {
	buf := make([]byte, sessionIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	id := make([]byte, sessionIDLength)
	for i, b := range buf {
		id[i] = sessionIDCharset[int(b)%len(sessionIDCharset)]
	}
	return string(id), nil
}

// newHostPasscode returns a 6-digit numeric credential. Unlike the draw
// randomness this is a credential, so it comes from crypto/rand.
func newHostPasscode() (string, error) {
	buf := make([]byte, passcodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate host passcode: %w", err)
	}
	code := make([]byte, passcodeLength)
	for i, b := range buf {
		code[i] = '0' + b%10
	}
	return string(code), nil
}

// newParticipantID returns a UUIDv4 participant identifier
func newParticipantID() string {
	return uuid.NewString()
}
