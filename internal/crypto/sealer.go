package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealerInfo = "messaging-core/vault/at-rest/v1"

var (
	ErrMasterKeyTooShort = errors.New("vault master key must be at least 32 bytes")
	ErrBlobTooShort      = errors.New("sealed blob too short")
)

// BlobKind names what a sealed blob holds. It is bound into the blob as
// associated data, so a blob only opens as the kind it was sealed as.
type BlobKind string

const (
	BlobIdentityKey BlobKind = "identity_key"
	BlobRatchetKey  BlobKind = "ratchet_key"
)

// Sealer protects key material at rest with AES-256-GCM under a key derived
// from the configured master secret.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(master []byte) (*Sealer, error) {
	if len(master) < 32 {
		return nil, ErrMasterKeyTooShort
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(sealerInfo)), key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext) with kind as associated data.
func (s *Sealer) Seal(kind BlobKind, plain []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, plain, []byte(kind))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. It fails when blob was sealed under another master key
// or as another kind.
func (s *Sealer) Open(kind BlobKind, blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, err
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, ErrBlobTooShort
	}
	return s.aead.Open(nil, raw[:ns], raw[ns:], []byte(kind))
}
