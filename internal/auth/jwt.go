package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	utils "github.com/fathima-sithara/tinytalk/internal/utils"
)

const (
	DefaultPIN = "1234"
	issuer     = "tinytalk"
	subject    = "household"
)

// Authenticator guards the app with a shared household PIN and hands out
// short-lived HS256 session tokens once the PIN checks out.
type Authenticator struct {
	pin    string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New builds an Authenticator. An empty secret gets a random one, which
// invalidates sessions on restart.
func New(pin string, secret []byte, ttl time.Duration) (*Authenticator, error) {
	if pin == "" {
		pin = DefaultPIN
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{pin: pin, secret: secret, ttl: ttl, now: time.Now}, nil
}

// CheckPIN compares in constant time.
func (a *Authenticator) CheckPIN(pin string) bool {
	return subtle.ConstantTimeCompare([]byte(pin), []byte(a.pin)) == 1
}

// Login checks the PIN and mints a session token on success.
func (a *Authenticator) Login(pin string) (string, error) {
	if !a.CheckPIN(pin) {
		return "", utils.ErrUnauthorized
	}
	return a.Issue()
}

func (a *Authenticator) Issue() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks signature, issuer and expiry of a session token.
func (a *Authenticator) Verify(token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing session", utils.ErrUnauthorized)
	}
	t, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrUnauthorized, err)
	}
	if !t.Valid {
		return fmt.Errorf("%w: invalid session", utils.ErrUnauthorized)
	}
	return nil
}
