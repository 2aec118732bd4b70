package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/history-service/internal/config"
)

type JWTValidator struct {
	alg    string
	pub    *rsa.PublicKey
	secret []byte
}

func NewJWTValidator(cfg config.JWT) (*JWTValidator, error) {
	switch strings.ToUpper(cfg.Alg) {
	case "HS256":
		return &JWTValidator{alg: "HS256", secret: []byte(cfg.HSSecret)}, nil
	case "RS256":
		pub, err := loadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		return &JWTValidator{alg: "RS256", pub: pub}, nil
	default:
		return nil, errors.New("unsupported jwt alg")
	}
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("failed to decode public key")
	}
	pubIfc, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := pubIfc.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not rsa public key")
	}
	return pub, nil
}

// Validate checks the token signature and returns the subject user id.
func (j *JWTValidator) Validate(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if j.alg == "HS256" {
			return j.secret, nil
		}
		return j.pub, nil
	}, jwt.WithValidMethods([]string{j.alg}))
	if err != nil {
		return "", err
	}
	if claims, ok := tok.Claims.(jwt.MapClaims); ok && tok.Valid {
		if sub, ok := claims["sub"].(string); ok {
			return sub, nil
		}
		if userID, ok := claims["user_id"].(string); ok {
			return userID, nil
		}
	}
	return "", errors.New("invalid token")
}
