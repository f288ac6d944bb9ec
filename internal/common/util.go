package common

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateRandByteArray returns size cryptographically random bytes.
func GenerateRandByteArray(size int) []byte {
	buf := make([]byte, size)
	_, _ = rand.Read(buf)
	return buf
}

// MakeRandHexString returns a hex string backed by size random bytes
// (the result is 2*size characters long).
func MakeRandHexString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// WipeByteArray zeroes the buffer in place. Safe on nil.
func WipeByteArray(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// MaskEmail produces a display-safe form of an email address, keeping only
// the first character of the local part and the domain:
//
//	MaskEmail("jane.doe@example.com") == "j*******@example.com"
//
// Invalid addresses are masked entirely so nothing recognizable leaks into
// logs or API responses.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return strings.Repeat("*", len(email))
	}
	local, domain := email[:at], email[at+1:]
	masked := local[:1] + strings.Repeat("*", len(local)-1)
	return masked + "@" + domain
}
