package authmock

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, 3600)
	return NewHandler(svc, nil).Router()
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSignInEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/v1/accounts:signInWithPassword", gin.H{
		"email":             "test@example.com",
		"password":          "testpassword123",
		"returnSecureToken": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Kind         string `json:"kind"`
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
		IDToken      string `json:"idToken"`
		Registered   bool   `json:"registered"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Kind != "identitytoolkit#VerifyPasswordResponse" {
		t.Fatalf("kind = %q", resp.Kind)
	}
	if resp.IDToken == "" || resp.RefreshToken == "" || resp.LocalID == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	if !resp.Registered || resp.Email != "test@example.com" {
		t.Fatalf("response: %+v", resp)
	}
	// expiresIn is a string, matching the upstream API.
	if resp.ExpiresIn != "3600" {
		t.Fatalf("expiresIn = %q", resp.ExpiresIn)
	}
}

func TestSignInEndpoint_Errors(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name    string
		body    gin.H
		wantMsg string
	}{
		{"unknown_email", gin.H{"email": "nobody@example.com", "password": "x"}, "EMAIL_NOT_FOUND"},
		{"wrong_password", gin.H{"email": "test@example.com", "password": "wrong"}, "INVALID_PASSWORD"},
		{"missing_fields", gin.H{"email": "test@example.com"}, "INVALID_REQUEST"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, r, "/v1/accounts:signInWithPassword", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			var resp struct {
				Error struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Error.Message != tc.wantMsg {
				t.Fatalf("message = %q, want %q", resp.Error.Message, tc.wantMsg)
			}
			if resp.Error.Code != http.StatusBadRequest {
				t.Fatalf("code = %d", resp.Error.Code)
			}
		})
	}
}

func TestRefreshEndpoint(t *testing.T) {
	r := newTestRouter(t)

	// Sign in first to get a refresh token.
	w := postJSON(t, r, "/v1/accounts:signInWithPassword", gin.H{
		"email":    "test@example.com",
		"password": "testpassword123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("sign in status = %d", w.Code)
	}
	var signIn struct {
		RefreshToken string `json:"refreshToken"`
		LocalID      string `json:"localId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &signIn); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = postJSON(t, r, "/v1/token", gin.H{
		"grant_type":    "refresh_token",
		"refresh_token": signIn.RefreshToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		UserID       string `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.AccessToken != resp.IDToken {
		t.Fatalf("response: %+v", resp)
	}
	if resp.UserID != signIn.LocalID {
		t.Fatalf("user id = %q, want %q", resp.UserID, signIn.LocalID)
	}
}

func TestRefreshEndpoint_Errors(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/v1/token", gin.H{
		"grant_type":    "refresh_token",
		"refresh_token": "bogus",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}

	w = postJSON(t, r, "/v1/token", gin.H{
		"grant_type":    "password",
		"refresh_token": "anything",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad grant type status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("INVALID_GRANT_TYPE")) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestAuthHealth(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
