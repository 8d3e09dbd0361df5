package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/ordermesh/hub/internal/crypto"
)

// Credentials is the plaintext shape sealed inside Store.credentials.
// Platforms that issue OAuth2 refresh tokens (Etsy, Amazon SP-API) populate
// RefreshToken/ClientID/ClientSecret/TokenURL; platforms with long-lived API
// keys (Shopify, Printify, Gumroad, Amazon KDP) populate only AccessToken.
type Credentials struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	TokenURL      string    `json:"token_url,omitempty"`
	ClientID      string    `json:"client_id,omitempty"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	WebhookSecret string    `json:"webhook_secret,omitempty"`
	ShopDomain    string    `json:"shop_domain,omitempty"`
}

// unsealCredentials opens the sealed blob and decodes it.
func unsealCredentials(sealer *crypto.Sealer, sealed []byte) (Credentials, error) {
	plaintext, err := sealer.Open(sealed)
	if err != nil {
		return Credentials{}, fmt.Errorf("unsealing credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return Credentials{}, fmt.Errorf("decoding credentials: %w", err)
	}
	return c, nil
}

// UnsealCredentials is the exported form of unsealCredentials, for callers
// outside this package that need read-only access to a store's credential
// blob (the webhook intake reads WebhookSecret from it).
func UnsealCredentials(sealer *crypto.Sealer, sealed []byte) (Credentials, error) {
	return unsealCredentials(sealer, sealed)
}

// SealCredentials encodes and seals Credentials for storage in
// Store.credentials.
func SealCredentials(sealer *crypto.Sealer, c Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding credentials: %w", err)
	}
	return sealer.Seal(plaintext)
}

// accessToken returns a valid bearer token for the call, refreshing via
// OAuth2 when the credential carries a refresh token and is expired or
// about to expire. When a refresh occurs, refreshed is non-nil and the
// caller should re-seal and persist it so the next call skips the round
// trip.
func accessToken(ctx context.Context, c Credentials) (token string, refreshed *Credentials, err error) {
	if c.RefreshToken == "" {
		if c.AccessToken == "" {
			return "", nil, fmt.Errorf("no access token configured")
		}
		return c.AccessToken, nil, nil
	}

	if !c.ExpiresAt.IsZero() && time.Until(c.ExpiresAt) > time.Minute {
		return c.AccessToken, nil, nil
	}

	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenURL},
	}

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken}).Token()
	if err != nil {
		return "", nil, fmt.Errorf("refreshing oauth2 token: %w", err)
	}

	c.AccessToken = tok.AccessToken
	c.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	return c.AccessToken, &c, nil
}
