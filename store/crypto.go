package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/lumen-mentor/lumen/errors"
)

// Sealer encrypts message content before it reaches the database and
// decrypts it on the way back out. The passphrase is stretched to an AES-256
// key; each Seal uses a fresh random nonce prepended to the ciphertext.
type Sealer struct {
	key [32]byte
}

// NewSealer derives a sealer from a passphrase. Returns nil for an empty
// passphrase, which callers treat as plaintext passthrough.
func NewSealer(passphrase string) *Sealer {
	if passphrase == "" {
		return nil
	}
	return &Sealer{key: sha256.Sum256([]byte(passphrase))}
}

// Seal encrypts plaintext. A nil Sealer returns the input unchanged.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if s == nil {
		return plaintext, nil
	}
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext produced by Seal. A nil Sealer returns the input
// unchanged.
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	if s == nil {
		return ciphertext, nil
	}
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decrypt content")
	}
	return plaintext, nil
}
