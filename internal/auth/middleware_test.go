package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agreements/agr-1", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenInstruction(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "tenant", "viewer")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agreements/agr-1/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_PartyForbiddenAirdrop(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "tenant", "party")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/tenant/airdrop", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_SignersFromTokens(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil))
	var signers []string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signers = SignersFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agreements/agr-1/terminate", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "owner", "party"))
	req.Header.Set(CosignerHeader, mustToken(t, secret, "tenant", "party"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Join(signers, ",") != "owner,tenant" {
		t.Fatalf("unexpected signers %v", signers)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/agreements/agr-1/terminate", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "owner", "party"))
	req.Header.Set(CosignerHeader, "garbage")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad cosigner, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected exempt path, got %d", resp.Code)
	}
}

func TestParseJWT_RejectsBadSubject(t *testing.T) {
	secret := []byte("test-secret")
	if _, err := ParseJWT(mustToken(t, secret, "not an address", "party"), secret); err == nil {
		t.Fatal("expected error for invalid subject")
	}
	if _, err := ParseJWT(mustToken(t, secret, "owner", "root"), secret); err == nil {
		t.Fatal("expected error for invalid role")
	}
	issued, err := IssueJWT(secret, "owner", RoleParty, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(issued, secret)
	if err != nil {
		t.Fatalf("parse issued: %v", err)
	}
	if claims.Subject != "owner" || claims.Role != string(RoleParty) {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func mustToken(t *testing.T, secret []byte, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
