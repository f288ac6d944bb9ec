// Package cryptox implements the credential vault: authenticated symmetric
// encryption (AES-256-GCM) over every secret listkeeper persists: ESP API
// keys, OAuth access/refresh tokens and subscriber email addresses.
//
// Ciphertext wire format is three base64 segments separated by ':':
//
//	base64(iv) : base64(tag) : base64(ciphertext)
//
// The cipher key is never the raw master secret; it is stretched with
// PBKDF2-SHA256 (100k iterations, fixed application salt) into a 32-byte key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 100_000
	keySize       = 32
	nonceSize     = 12
	tagSize       = 16
)

// keySalt is a fixed application-level salt for key derivation. It is not a
// secret; uniqueness per application is all it provides.
var keySalt = []byte("listkeeper/credential-vault/v1")

// DeriveKey stretches the configured master secret into an AES-256 key.
func DeriveKey(masterSecret string) []byte {
	return pbkdf2.Key([]byte(masterSecret), keySalt, keyIterations, keySize, sha256.New)
}

// Vault performs authenticated encryption/decryption of stored secrets.
type Vault struct {
	aead cipher.AEAD
}

// NewVault derives the cipher key from masterSecret and prepares the AEAD.
func NewVault(masterSecret string) (*Vault, error) {
	key := DeriveKey(masterSecret)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault init: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// iv:tag:ciphertext token.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal appends the GCM tag to the ciphertext; the stored format keeps
	// the tag as its own segment.
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	enc := base64.StdEncoding
	return enc.EncodeToString(nonce) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ciphertext), nil
}

// Decrypt opens an iv:tag:ciphertext token. Any malformed or tampered input
// fails with common.ErrDecryption; partially decrypted plaintext is never
// returned.
func (v *Vault) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", common.ErrDecryption, len(parts))
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad iv encoding", common.ErrDecryption)
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag encoding", common.ErrDecryption)
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", common.ErrDecryption)
	}

	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: iv length %d", common.ErrDecryption, len(nonce))
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag length %d", common.ErrDecryption, len(tag))
	}

	plaintext, err := v.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", common.ErrDecryption
	}
	return string(plaintext), nil
}
