package domain

import "time"

// Pair is the canonical (min, max) form of an unordered user pair.
type Pair struct {
	Low  int64 `bson:"user_a_id" json:"user_a_id"`
	High int64 `bson:"user_b_id" json:"user_b_id"`
}

func NewPair(a, b int64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

type ConversationKey struct {
	Pair      `bson:",inline"`
	KeyBase64 string    `bson:"symmetric_key" json:"symmetric_key"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// JWK carries an RSA key in JSON Web Key form. Private members are only ever
// populated on decrypted private material.
type JWK struct {
	Kty string `bson:"kty" json:"kty"`
	N   string `bson:"n" json:"n"`
	E   string `bson:"e" json:"e"`
	Alg string `bson:"alg" json:"alg"`
	Use string `bson:"use" json:"use"`
	Ext bool   `bson:"ext" json:"ext"`

	D  string `bson:"d,omitempty" json:"d,omitempty"`
	P  string `bson:"p,omitempty" json:"p,omitempty"`
	Q  string `bson:"q,omitempty" json:"q,omitempty"`
	DP string `bson:"dp,omitempty" json:"dp,omitempty"`
	DQ string `bson:"dq,omitempty" json:"dq,omitempty"`
	QI string `bson:"qi,omitempty" json:"qi,omitempty"`
}

// Public returns a copy holding only the public members.
func (k JWK) Public() JWK {
	return JWK{Kty: k.Kty, N: k.N, E: k.E, Alg: k.Alg, Use: k.Use, Ext: k.Ext}
}

type VaultEntry struct {
	ID                    string     `bson:"_id" json:"id"`
	UserID                int64      `bson:"user_id" json:"user_id"`
	EncryptedPrivateKey   string     `bson:"encrypted_private_key" json:"-"`
	PublicKey             JWK        `bson:"public_key" json:"public_key"`
	RatchetPrivateKeyBlob string     `bson:"ratchet_private_key_blob,omitempty" json:"-"`
	RatchetPublicKey      string     `bson:"ratchet_public_key,omitempty" json:"ratchet_public_key,omitempty"`
	CreatedAt             time.Time  `bson:"created_at" json:"created_at"`
	RotatedAt             *time.Time `bson:"rotated_at,omitempty" json:"rotated_at,omitempty"`
	IsActive              bool       `bson:"is_active" json:"is_active"`
}

func (v *VaultEntry) HasRatchet() bool {
	return v.RatchetPrivateKeyBlob != "" && v.RatchetPublicKey != ""
}

// PrivateMaterial is the decrypted view of a vault entry. Degraded is set when
// the at-rest layer could not unprotect the stored value and the raw value was
// returned instead.
type PrivateMaterial struct {
	UserID            int64  `json:"user_id"`
	PrivateKeyPEM     string `json:"private_key_pem"`
	RatchetPrivateKey string `json:"ratchet_private_key,omitempty"`
	Degraded          bool   `json:"degraded"`
}
