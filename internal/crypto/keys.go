package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"

	"filippo.io/age"

	"github.com/fathima-sithara/messaging-core/internal/domain"
)

const (
	rsaBits          = 2048
	symmetricKeySize = 32
)

// NewSymmetricKey returns 256 random bits, std base64 encoded.
func NewSymmetricKey() (string, error) {
	b := make([]byte, symmetricKeySize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// IdentityKeyPair is a freshly generated RSA keypair: the public half as a JWK
// for client-side envelope encryption, the private half as PKCS#8 PEM.
type IdentityKeyPair struct {
	Public        domain.JWK
	PrivateKeyPEM []byte
}

func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return &IdentityKeyPair{
		Public:        PublicJWK(&priv.PublicKey),
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
	}, nil
}

func PublicJWK(pub *rsa.PublicKey) domain.JWK {
	return domain.JWK{
		Kty: "RSA",
		N:   b64url(pub.N.Bytes()),
		E:   b64url(big.NewInt(int64(pub.E)).Bytes()),
		Alg: "RSA-OAEP-256",
		Use: "enc",
		Ext: true,
	}
}

// RatchetKeyPair is an X25519 keypair in age encoding: Public is "age1...",
// Private is "AGE-SECRET-KEY-1...".
type RatchetKeyPair struct {
	Public  string
	Private string
}

func GenerateRatchetKeyPair() (*RatchetKeyPair, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}
	return &RatchetKeyPair{Public: id.Recipient().String(), Private: id.String()}, nil
}

func b64url(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
