package authmock

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Signing key for minted tokens. Purely cosmetic: tokens get a realistic
// JWT shape, but acceptance is registry membership, so the key needs no
// secrecy.
const signingKey = "simulator-dev-key"

// Domain errors for the sign-in and refresh flows.
var (
	ErrEmailNotFound       = errors.New("EMAIL_NOT_FOUND")
	ErrInvalidPassword     = errors.New("INVALID_PASSWORD")
	ErrInvalidRefreshToken = errors.New("INVALID_REFRESH_TOKEN")
)

// Credentials holds an issued token set for a successful sign-in.
type Credentials struct {
	UserID       string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresIn    int
}

// Service authenticates configured test accounts and mints bearer tokens
// into the registry.
type Service struct {
	registry *Registry
	hashes   map[string][]byte // email -> bcrypt hash
	users    map[string]string // email -> stable user id
	expiry   time.Duration
}

// NewService hashes the configured plaintext credentials and wires the
// token registry.
func NewService(registry *Registry, credentials map[string]string, tokenExpirySeconds int) (*Service, error) {
	s := &Service{
		registry: registry,
		hashes:   make(map[string][]byte, len(credentials)),
		users:    make(map[string]string, len(credentials)),
		expiry:   time.Duration(tokenExpirySeconds) * time.Second,
	}
	for email, password := range credentials {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("hash credential for %s: %w", email, err)
		}
		s.hashes[email] = hash
		s.users[email] = uuid.NewString()
	}
	return s, nil
}

// SignIn verifies email/password and issues a fresh token pair.
func (s *Service) SignIn(email, password string) (Credentials, error) {
	hash, ok := s.hashes[email]
	if !ok {
		return Credentials{}, ErrEmailNotFound
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Credentials{}, ErrInvalidPassword
	}
	return s.issue(s.users[email], email)
}

// Refresh exchanges a refresh token for a new token pair for the same user.
func (s *Service) Refresh(refreshToken string) (Credentials, error) {
	info, ok := s.registry.lookupRefresh(refreshToken)
	if !ok {
		return Credentials{}, ErrInvalidRefreshToken
	}
	return s.issue(info.userID, info.email)
}

func (s *Service) issue(userID, email string) (Credentials, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		return Credentials{}, fmt.Errorf("sign token: %w", err)
	}

	refreshToken := newRefreshToken()
	s.registry.register(idToken, tokenInfo{
		userID:       userID,
		email:        email,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
	})

	return Credentials{
		UserID:       userID,
		Email:        email,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.expiry.Seconds()),
	}, nil
}

func newRefreshToken() string {
	b := make([]byte, 22)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
