package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret"

	token, err := GenerateToken("admin", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	userID, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != "admin" {
		t.Errorf("userID = %q, want admin", userID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("admin", "secret-a", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(token, "secret-b"); err == nil {
		t.Error("expected validation to fail with the wrong secret")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	token, err := GenerateToken("admin", "secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(token, "secret"); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("correct-horse", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestMiddleware(t *testing.T) {
	cfg := Config{JWTSecret: "secret", TokenDuration: time.Hour}
	token, err := GenerateToken("admin", cfg.JWTSecret, cfg.TokenDuration)
	if err != nil {
		t.Fatal(err)
	}

	protected := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok || userID != "admin" {
			t.Errorf("user id missing from context: %q %v", userID, ok)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid bearer token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/pipeline/run", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
