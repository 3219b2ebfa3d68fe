package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const testPassword = "Correct-Horse-42"

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := NewPasswordManager(4).HashPassword(testPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	cfg := DefaultConfig()
	cfg.AdminPasswordHash = hash
	cfg.ViewerUsername = "viewer"
	cfg.ViewerPasswordHash = hash
	cfg.JWTSecret = "test-secret-with-enough-entropy"
	cfg.MaxLoginAttempts = 3
	return NewService(cfg, zerolog.Nop())
}

// TestJWTRoundTrip tests that issued access tokens validate with their claims
func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute, time.Hour)

	token, err := m.GenerateAccessToken(OperatorClaims{Username: "admin", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if claims.Username != "admin" || claims.Role != RoleAdmin {
		t.Errorf("Unexpected claims %+v", claims)
	}

	other := NewJWTManager("other", time.Minute, time.Hour)
	if _, err := other.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

// TestJWTExpiry tests that expired tokens report ErrTokenExpired
func TestJWTExpiry(t *testing.T) {
	m := NewJWTManager("secret", time.Minute, time.Hour)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, _ := m.GenerateAccessToken(OperatorClaims{Username: "admin", Role: RoleAdmin})

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

// TestPasswordStrength tests the password policy
func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		valid    bool
	}{
		{"short1A!", false},
		{"alllowercaseletters", false},
		{"lowercase-and-digits-1", true},
		{testPassword, true},
	}

	for _, tt := range tests {
		err := ValidatePasswordStrength(tt.password)
		if (err == nil) != tt.valid {
			t.Errorf("ValidatePasswordStrength(%q): expected valid=%v, got err=%v", tt.password, tt.valid, err)
		}
	}
}

// TestLoginAndRefresh tests the login and refresh rotation flow
func TestLoginAndRefresh(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	pair, err := s.Login(ctx, LoginRequest{Username: "admin", Password: testPassword})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 900 {
		t.Errorf("Unexpected token pair %+v", pair)
	}

	next, err := s.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Unexpected refresh error: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("Expected a rotated refresh token")
	}

	if _, err := s.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("Expected reused refresh token to be revoked, got %v", err)
	}

	s.Logout(ctx, next.RefreshToken)
	if _, err := s.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("Expected logged out token to be revoked, got %v", err)
	}
}

// TestRefreshExpired tests that a stale refresh session is rejected
func TestRefreshExpired(t *testing.T) {
	s := newTestService(t)
	start := time.Now()
	s.now = func() time.Time { return start }

	pair, err := s.Login(context.Background(), LoginRequest{Username: "admin", Password: testPassword})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s.now = func() time.Time { return start.Add(8 * 24 * time.Hour) }
	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

// TestLoginLockout tests that repeated failures lock the operator out
func TestLoginLockout(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := s.Login(ctx, LoginRequest{Username: "admin", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	if _, err := s.Login(ctx, LoginRequest{Username: "admin", Password: testPassword}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited during lockout, got %v", err)
	}

	now = now.Add(16 * time.Minute)
	if _, err := s.Login(ctx, LoginRequest{Username: "admin", Password: testPassword}); err != nil {
		t.Errorf("Expected login after lockout, got %v", err)
	}
}

// TestUnknownOperator tests that unknown usernames are rejected
func TestUnknownOperator(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Login(context.Background(), LoginRequest{Username: "root", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

func newTestRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandlers(s).RegisterRoutes(r.Group("/api/auth"))

	admin := r.Group("/admin")
	admin.Use(Middleware(s.JWT()), RequireAdmin())
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetClaims(c).Username})
	})
	return r
}

func login(t *testing.T, r *gin.Engine, username string) TokenPair {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Username: username, Password: testPassword})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from login, got %d: %s", w.Code, w.Body.String())
	}
	var pair TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatalf("Failed to decode token pair: %v", err)
	}
	return pair
}

// TestHandlersRoleEnforcement tests the middleware and admin gate over HTTP
func TestHandlersRoleEnforcement(t *testing.T) {
	s := newTestService(t)
	r := newTestRouter(s)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"viewer", "Bearer " + login(t, r, "viewer").AccessToken, http.StatusForbidden},
		{"admin", "Bearer " + login(t, r, "admin").AccessToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

// TestHandlersLoginErrors tests the login error responses
func TestHandlersLoginErrors(t *testing.T) {
	s := newTestService(t)
	r := newTestRouter(s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte(`{}`))))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", w.Code)
	}

	body, _ := json.Marshal(LoginRequest{Username: "admin", Password: "wrong"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", w.Code)
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != ErrInvalidCredentials.Code {
		t.Errorf("Expected %s, got %s", ErrInvalidCredentials.Code, resp["error"])
	}
}

// TestHandlersMe tests the authenticated operator endpoint
func TestHandlersMe(t *testing.T) {
	s := newTestService(t)
	r := newTestRouter(s)
	pair := login(t, r, "viewer")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var claims OperatorClaims
	json.Unmarshal(w.Body.Bytes(), &claims)
	if claims.Username != "viewer" || claims.Role != RoleViewer {
		t.Errorf("Unexpected claims %+v", claims)
	}
}
