package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestToken_GenerateVerifyRoundTrip(t *testing.T) {
	token := NewToken("secret")

	signed, err := token.Generate("session-1")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	sessionID, err := token.Verify(signed)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if sessionID != "session-1" {
		t.Fatalf("expected session-1, got %q", sessionID)
	}
}

func TestToken_VerifyRejectsWrongSecret(t *testing.T) {
	signed, err := NewToken("secret-a").Generate("session-1")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := NewToken("secret-b").Verify(signed); err == nil {
		t.Fatal("expected verification to fail with a mismatched secret")
	}
}

func TestToken_VerifyRejectsExpiredToken(t *testing.T) {
	token := NewToken("secret").WithTTL(-time.Second)
	signed, err := token.Generate("session-1")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := token.Verify(signed); err == nil {
		t.Fatal("expected verification to fail for an expired token")
	}
}

func TestRequireBearer_RejectsMissingAndInvalidTokens(t *testing.T) {
	token := NewToken("secret")
	handler := RequireBearer(token, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing header, got %d", rec.Code)
	}

	signed, _ := token.Generate("session-1")
	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.Header.Set("Authorization", "Bearer "+signed)
	rec2 := httptest.NewRecorder()
	handler(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 for a valid token, got %d", rec2.Code)
	}
}
