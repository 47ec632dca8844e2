package sessions

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/khanghh/kadmin/model"
)

const tokenIssuer = "kadmin"

// Claims is the signed session reference handed to clients.
type Claims struct {
	SessionID  string `json:"sid"`
	IdentityID uint   `json:"uid"`
	TenantID   uint   `json:"tid"`
	jwt.RegisteredClaims
}

type TokenSigner struct {
	key []byte
}

func (s *TokenSigner) Sign(session *model.Session, maxExpiry time.Time) (string, error) {
	claims := Claims{
		SessionID:  session.ID,
		IdentityID: session.IdentityID,
		TenantID:   session.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(maxExpiry),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *TokenSigner) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func NewTokenSigner(masterKey string) *TokenSigner {
	return &TokenSigner{key: []byte("session:" + masterKey)}
}
