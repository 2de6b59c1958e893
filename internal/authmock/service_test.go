package authmock

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, expirySeconds int) (*Service, *Registry) {
	t.Helper()
	registry := NewRegistry([]string{"valid-test-token"}, []string{"expired-test-token"})
	svc, err := NewService(registry, map[string]string{"test@example.com": "testpassword123"}, expirySeconds)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, registry
}

func TestRegistry_StaticTokens(t *testing.T) {
	registry := NewRegistry([]string{"valid-test-token"}, []string{"expired-test-token"})

	if !registry.Valid("valid-test-token") {
		t.Fatal("static token not valid")
	}
	if registry.Expired("valid-test-token") {
		t.Fatal("static token reported expired")
	}
	if registry.Valid("nope") {
		t.Fatal("unknown token reported valid")
	}
	// Configured-expired tokens are recognized even though never issued.
	if !registry.Expired("expired-test-token") {
		t.Fatal("configured expired token not reported expired")
	}
}

func TestSignIn(t *testing.T) {
	svc, registry := newTestService(t, 3600)

	creds, err := svc.SignIn("test@example.com", "testpassword123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if creds.IDToken == "" || creds.RefreshToken == "" || creds.UserID == "" {
		t.Fatalf("incomplete credentials: %+v", creds)
	}
	if creds.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %d", creds.ExpiresIn)
	}
	// Minted tokens look like JWTs and reach the registry.
	if strings.Count(creds.IDToken, ".") != 2 {
		t.Fatalf("token not JWT-shaped: %q", creds.IDToken)
	}
	if !registry.Valid(creds.IDToken) {
		t.Fatal("issued token not in registry")
	}
	if registry.Expired(creds.IDToken) {
		t.Fatal("fresh token reported expired")
	}
}

func TestSignIn_Rejections(t *testing.T) {
	svc, _ := newTestService(t, 3600)

	cases := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"unknown_email", "nobody@example.com", "whatever", ErrEmailNotFound},
		{"wrong_password", "test@example.com", "wrong", ErrInvalidPassword},
		{"empty_password", "test@example.com", "", ErrInvalidPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SignIn(tc.email, tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSignIn_StableUserID(t *testing.T) {
	svc, _ := newTestService(t, 3600)

	first, err := svc.SignIn("test@example.com", "testpassword123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	second, err := svc.SignIn("test@example.com", "testpassword123")
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if first.UserID != second.UserID {
		t.Fatalf("user id changed between sign-ins: %q vs %q", first.UserID, second.UserID)
	}
	if first.IDToken == second.IDToken && first.RefreshToken == second.RefreshToken {
		t.Fatal("sign-in reissued identical token pair")
	}
}

func TestRefresh(t *testing.T) {
	svc, registry := newTestService(t, 3600)

	creds, err := svc.SignIn("test@example.com", "testpassword123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	refreshed, err := svc.Refresh(creds.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.UserID != creds.UserID || refreshed.Email != creds.Email {
		t.Fatalf("refresh changed identity: %+v", refreshed)
	}
	if !registry.Valid(refreshed.IDToken) {
		t.Fatal("refreshed token not in registry")
	}

	if _, err := svc.Refresh("bogus"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidRefreshToken)
	}
}

func TestIssuedTokenExpiry(t *testing.T) {
	svc, registry := newTestService(t, 0)

	creds, err := svc.SignIn("test@example.com", "testpassword123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	// Zero TTL: expiresAt is now, so the token lapses immediately.
	time.Sleep(5 * time.Millisecond)
	if !registry.Expired(creds.IDToken) {
		t.Fatal("zero-TTL token not reported expired")
	}
	// An expired issued token is still a known token.
	if !registry.Valid(creds.IDToken) {
		t.Fatal("expired issued token dropped from registry")
	}
}
