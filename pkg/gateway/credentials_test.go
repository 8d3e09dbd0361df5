package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ordermesh/hub/internal/crypto"
)

func TestSealCredentialsRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	want := Credentials{AccessToken: "tok_123", WebhookSecret: "whsec_abc"}
	sealed, err := SealCredentials(sealer, want)
	if err != nil {
		t.Fatalf("SealCredentials: %v", err)
	}

	got, err := unsealCredentials(sealer, sealed)
	if err != nil {
		t.Fatalf("unsealCredentials: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.WebhookSecret != want.WebhookSecret {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}
}

func TestAccessToken_StaticKeyNoRefresh(t *testing.T) {
	c := Credentials{AccessToken: "static_token"}

	token, refreshed, err := accessToken(context.Background(), c)
	if err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if token != "static_token" {
		t.Fatalf("token = %q, want static_token", token)
	}
	if refreshed != nil {
		t.Fatalf("refreshed = %+v, want nil for a static credential", refreshed)
	}
}

func TestAccessToken_MissingTokenErrors(t *testing.T) {
	_, _, err := accessToken(context.Background(), Credentials{})
	if err == nil {
		t.Fatalf("accessToken: want error for empty credentials")
	}
}

func TestAccessToken_UnexpiredRefreshableTokenSkipsRefresh(t *testing.T) {
	c := Credentials{
		AccessToken:  "still_valid",
		RefreshToken: "refresh_abc",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	token, refreshed, err := accessToken(context.Background(), c)
	if err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if token != "still_valid" {
		t.Fatalf("token = %q, want still_valid", token)
	}
	if refreshed != nil {
		t.Fatalf("refreshed = %+v, want nil when not near expiry", refreshed)
	}
}

func TestAccessToken_ExpiredTokenRefreshes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh_token",
			"refresh_token": "refresh_def",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	c := Credentials{
		AccessToken:  "stale_token",
		RefreshToken: "refresh_abc",
		ClientID:     "client_id",
		ClientSecret: "client_secret",
		TokenURL:     srv.URL,
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	token, refreshed, err := accessToken(context.Background(), c)
	if err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if token != "fresh_token" {
		t.Fatalf("token = %q, want fresh_token", token)
	}
	if refreshed == nil {
		t.Fatalf("refreshed = nil, want non-nil after a refresh")
	}
	if refreshed.RefreshToken != "refresh_def" {
		t.Fatalf("refreshed.RefreshToken = %q, want refresh_def", refreshed.RefreshToken)
	}
}
