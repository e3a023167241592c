package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestResolveClientConfig_CompanyFromToken(t *testing.T) {
	clearEnv(t)
	withFailingKeyring(t, errors.New("unused"))
	token := signedToken(t, jwt.MapClaims{"sub": "u1", "company_id": float64(17)})
	t.Setenv(EnvBaseURL, "https://inbox.example.com")
	t.Setenv(EnvToken, token)

	cfg, err := ResolveClientConfig()
	if err != nil {
		t.Fatalf("ResolveClientConfig() error = %v", err)
	}
	if cfg.CompanyID != "17" {
		t.Errorf("CompanyID = %q, want 17", cfg.CompanyID)
	}

	t.Setenv(EnvCompanyID, "99")
	cfg, _ = ResolveClientConfig()
	if cfg.CompanyID != "99" {
		t.Errorf("explicit company id should win, got %q", cfg.CompanyID)
	}
}

func TestResolveClientConfig_NotConfigured(t *testing.T) {
	clearEnv(t)
	withMockKeyring(t, keyring.NewArrayKeyring(nil))
	if _, err := ResolveClientConfig(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestResolveBaseURL(t *testing.T) {
	clearEnv(t)
	withMockKeyring(t, keyring.NewArrayKeyring(nil))

	if _, err := ResolveBaseURL(""); err == nil {
		t.Error("expected error without any base URL")
	}
	t.Setenv(EnvBaseURL, "https://env.example.com/")
	if got, _ := ResolveBaseURL(""); got != "https://env.example.com" {
		t.Errorf("ResolveBaseURL() = %q", got)
	}
	if got, _ := ResolveBaseURL("https://flag.example.com"); got != "https://flag.example.com" {
		t.Errorf("override ignored: %q", got)
	}
}

func TestResolveCacheSettings(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		redisURL string
		want     string
		wantErr  bool
	}{
		{"default", "", "", TagCacheFile, false},
		{"redis url implies redis", "", "redis://localhost:6379/0", TagCacheRedis, false},
		{"explicit memory", "Memory", "", TagCacheMemory, false},
		{"redis without url", "redis", "", "", true},
		{"unknown", "sqlite", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvTagCache, tt.backend)
			t.Setenv(EnvRedisURL, tt.redisURL)
			t.Setenv(EnvCacheDir, "")
			got, err := ResolveCacheSettings()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Backend != tt.want {
				t.Errorf("Backend = %q, want %q", got.Backend, tt.want)
			}
		})
	}
}

func TestDefaultEnvFile(t *testing.T) {
	dir := t.TempDir()
	original := userConfigDir
	userConfigDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { userConfigDir = original })

	if got, want := DefaultEnvFile(), filepath.Join(dir, "inbox", ".env"); got != want {
		t.Errorf("DefaultEnvFile() = %q, want %q", got, want)
	}
}

func TestInspectToken(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	token := signedToken(t, jwt.MapClaims{
		"sub":        "user-1",
		"email":      "staff@example.com",
		"company_id": "c-9",
		"exp":        exp.Unix(),
	})

	claims, err := InspectToken(token)
	if err != nil {
		t.Fatalf("InspectToken() error = %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "staff@example.com" || claims.CompanyID != "c-9" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}

	if _, err := InspectToken("opaque-api-token"); err == nil {
		t.Error("expected error for opaque token")
	}
}

func TestCheckSession(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), false},
		{"expired", signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), true},
		{"expires exactly now", signedToken(t, jwt.MapClaims{"exp": now.Unix()}), true},
		{"no exp claim", signedToken(t, jwt.MapClaims{"sub": "x"}), false},
		{"opaque", "abcdef", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSession(tt.token, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckSession() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrSessionExpired) {
				t.Errorf("error = %v, want ErrSessionExpired", err)
			}
		})
	}
}
