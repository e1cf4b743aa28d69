package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenService emite y valida los tokens que identifican una sesion.
type SessionTokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// SessionClaims es el contenido firmado del token de sesion.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Variant   string `json:"variant"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalid = errors.New("session token invalid")
	ErrTokenExpired = errors.New("session token expired")
)

// NewSessionTokenService usa un secreto aleatorio si secret esta vacio;
// en ese caso los tokens no sobreviven a un reinicio del proceso.
func NewSessionTokenService(secret string, ttl time.Duration) *SessionTokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := []byte(secret)
	if strings.TrimSpace(secret) == "" {
		key = randomSecret()
	}
	return &SessionTokenService{
		secret: key,
		ttl:    ttl,
		issuer: "coach-llm",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("session secret: " + err.Error())
	}
	return []byte(hex.EncodeToString(buf))
}

// Issue firma un token para la sesion.
func (s *SessionTokenService) Issue(sessionID, variant string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrTokenInvalid
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrTokenInvalid
	}
	now := s.now()
	claims := SessionClaims{
		SessionID: sessionID,
		Variant:   variant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse valida firma, emisor y expiracion.
func (s *SessionTokenService) Parse(tokenString string) (SessionClaims, error) {
	if s == nil || len(s.secret) == 0 {
		return SessionClaims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return SessionClaims{}, ErrTokenInvalid
	}
	var claims SessionClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrTokenExpired
		}
		return SessionClaims{}, ErrTokenInvalid
	}
	if !s.isValidClaims(claims) {
		return SessionClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *SessionTokenService) isValidClaims(claims SessionClaims) bool {
	if strings.TrimSpace(claims.SessionID) == "" {
		return false
	}
	if claims.Subject != claims.SessionID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
