// Package auth issues and checks signed session tokens for the mock user
// directory. The rest of the application only sees User values.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/wellbeing/internal/apperr"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// User is the display profile of a signed-in user.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	School string `json:"school"`
}

// Claims are the signed token contents.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type account struct {
	user User
	hash []byte
}

// Authenticator checks credentials against the directory and signs tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	byMail map[string]account
	byID   map[string]account
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for issuing and checking tokens.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// demoUser is the single account of the mock directory.
var demoUser = User{ID: "1", Email: "demo@example.com", Name: "Eleanor Vance", School: "Maplewood High"}

const demoPassword = "demo123"

// New creates an Authenticator signing with secret. The directory holds the
// demo account; its password is kept only as a bcrypt hash.
func New(secret string, opts ...Option) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	a := &Authenticator{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
		byMail: make(map[string]account),
		byID:   make(map[string]account),
	}
	for _, o := range opts {
		o(a)
	}
	if err := a.add(demoUser, demoPassword); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Authenticator) add(u User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	acc := account{user: u, hash: hash}
	a.byMail[strings.ToLower(u.Email)] = acc
	a.byID[u.ID] = acc
	return nil
}

// Login checks the credentials and returns a signed token for the user.
// Wrong credentials return apperr.ErrUnauthorized.
func (a *Authenticator) Login(email, password string) (string, User, error) {
	acc, ok := a.byMail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", User{}, fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return "", User{}, fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthorized)
	}
	tok, err := a.sign(acc.user)
	if err != nil {
		return "", User{}, err
	}
	return tok, acc.user, nil
}

func (a *Authenticator) sign(u User) (string, error) {
	now := a.now()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return s, nil
}

// UserFromToken returns the user a token was issued to. Expired, tampered or
// unknown-user tokens return apperr.ErrUnauthorized.
func (a *Authenticator) UserFromToken(token string) (*User, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("invalid token: %w", apperr.ErrUnauthorized)
	}
	acc, ok := a.byID[claims.Subject]
	if !ok {
		return nil, fmt.Errorf("unknown user: %w", apperr.ErrUnauthorized)
	}
	u := acc.user
	return &u, nil
}
