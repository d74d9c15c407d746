// Package jwt firma y valida los tokens de sesión del servicio.
//
// Los dos tipos de token (access y refresh) usan HS256 con el mismo
// secreto y se distinguen por el claim "kind"; un access token nunca se
// acepta donde se espera un refresh ni al revés.
package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Tipos de token soportados (claim "kind").
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("jwt: invalid token")
	ErrExpired      = errors.New("jwt: token expired")
	ErrWrongKind    = errors.New("jwt: wrong token kind")
)

// Claims son los claims de los tokens emitidos por el servicio.
type Claims struct {
	Kind string `json:"kind"`
	jwtv5.RegisteredClaims
}

// Codec firma y valida tokens con un secreto simétrico compartido.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec crea un Codec. Si now es nil usa time.Now.
func NewCodec(secret []byte, issuer string, now func() time.Time) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt: secret must be at least 32 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, issuer: issuer, now: now}, nil
}

// Sign emite un token del tipo indicado para el subject dado.
func (c *Codec) Sign(sub, kind string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   sub,
			Issuer:    c.issuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}

// Parse valida firma, expiración y tipo, y retorna el subject.
func (c *Codec) Parse(token, expectedKind string) (string, error) {
	var claims Claims
	tok, err := jwtv5.ParseWithClaims(token, &claims,
		func(t *jwtv5.Token) (any, error) { return c.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithTimeFunc(c.now),
		jwtv5.WithIssuer(c.issuer),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalidToken
	}
	if !tok.Valid {
		return "", ErrInvalidToken
	}
	if claims.Kind != expectedKind {
		return "", ErrWrongKind
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
