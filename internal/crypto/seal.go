// Package crypto seals and unseals opaque credential blobs (Store.credentials)
// using nacl/secretbox, so platform API tokens never sit in the database in
// cleartext. The box key is supplied by configuration; standing up an actual
// external key service is out of scope here, only the sealing boundary is.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// Sealer seals and opens credential blobs with a fixed symmetric key.
type Sealer struct {
	key [keySize]byte
}

// NewSealer builds a Sealer from a base64-standard-encoded 32-byte key.
func NewSealer(base64Key string) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decoding seal key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", keySize, len(raw))
	}

	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal encrypts plaintext into a self-contained blob (nonce prefixed to the
// ciphertext). The same Sealer that sealed a blob is required to open it.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return sealed, nil
}

// Open decrypts a blob produced by Seal. Returns an error if the blob was
// truncated or the key does not match (authentication failure).
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, fmt.Errorf("sealed credential blob too short")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("opening sealed credential: authentication failed")
	}
	return plaintext, nil
}

// GenerateKey returns a fresh base64-encoded 32-byte key, for operator
// bootstrap tooling (not used on the request path).
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}
