package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/domain"
)

const adminRole = "admin"

type JWTValidator struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
	issuer string
}

func NewJWTValidator(alg, secret, pubKeyPath, issuer string) (*JWTValidator, error) {
	jv := &JWTValidator{alg: alg, issuer: issuer}
	switch alg {
	case "RS256":
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, errors.Wrap(err, "read pubkey")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, errors.Wrap(err, "parse pubkey")
		}
		jv.pubKey = key
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		jv.secret = []byte(secret)
	default:
		return nil, fmt.Errorf("unsupported alg %q", alg)
	}
	return jv, nil
}

func (j *JWTValidator) keyFunc(*jwt.Token) (interface{}, error) {
	if j.alg == "RS256" {
		return j.pubKey, nil
	}
	return j.secret, nil
}

// Validate parses token and returns the caller identity. Any failure is
// reported as apperrors.ErrUnauthenticated.
func (j *JWTValidator) Validate(token string) (domain.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{j.alg}), jwt.WithExpirationRequired()}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	tok, err := jwt.NewParser(opts...).Parse(token, j.keyFunc)
	if err != nil || !tok.Valid {
		return domain.Identity{}, apperrors.ErrUnauthenticated
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, apperrors.ErrUnauthenticated
	}

	uid, ok := userID(claims)
	if !ok {
		return domain.Identity{}, apperrors.ErrUnauthenticated
	}
	role, _ := claims["role"].(string)
	return domain.Identity{UserID: uid, IsAdmin: role == adminRole}, nil
}

// userID reads "sub", falling back to "user_id". Either may be a decimal
// string or a JSON number.
func userID(claims jwt.MapClaims) (int64, bool) {
	for _, k := range []string{"sub", "user_id"} {
		switch v := claims[k].(type) {
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
				return id, true
			}
		case float64:
			if v > 0 && v == float64(int64(v)) {
				return int64(v), true
			}
		}
	}
	return 0, false
}
