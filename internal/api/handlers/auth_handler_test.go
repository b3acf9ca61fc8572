package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/Procura/internal/config"
)

func authConfig(t *testing.T, password string) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &config.Config{
		JWTSecret:         "test-secret",
		AdminEmail:        "ops@example.com",
		AdminPasswordHash: string(hash),
	}
}

func TestLogin(t *testing.T) {
	h := NewAuthHandler(authConfig(t, "correct horse"))

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"valid credentials", `{"email": "ops@example.com", "password": "correct horse"}`, http.StatusOK},
		{"wrong password", `{"email": "ops@example.com", "password": "guess"}`, http.StatusUnauthorized},
		{"wrong email", `{"email": "other@example.com", "password": "correct horse"}`, http.StatusUnauthorized},
		{"malformed body", `not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("Status = %d, want %d (body %s)", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Response not JSON: %v", err)
			}
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(resp["token"], claims, func(tok *jwt.Token) (interface{}, error) {
				return []byte("test-secret"), nil
			})
			if err != nil || !token.Valid {
				t.Fatalf("Issued token does not verify: %v", err)
			}
			if claims["sub"] != "ops@example.com" {
				t.Errorf("Token subject = %v", claims["sub"])
			}
		})
	}
}
