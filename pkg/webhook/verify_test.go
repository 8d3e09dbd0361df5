package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestVerifySignature_ShopifyValid(t *testing.T) {
	secret := "shhh"
	body := []byte(`{"id":1}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	header := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !verifySignature("shopify", secret, body, header) {
		t.Fatalf("verifySignature: want valid")
	}
}

func TestVerifySignature_ShopifyInvalid(t *testing.T) {
	if verifySignature("shopify", "shhh", []byte(`{"id":1}`), "bogus") {
		t.Fatalf("verifySignature: want invalid")
	}
}

func TestVerifySignature_DefaultHexEncoding(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`payload`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	header := hex.EncodeToString(mac.Sum(nil))

	if !verifySignature("printify", secret, body, header) {
		t.Fatalf("verifySignature: want valid")
	}
}

func TestVerifySignature_EmptyHeaderRejected(t *testing.T) {
	if verifySignature("shopify", "shhh", []byte(`{}`), "") {
		t.Fatalf("verifySignature: empty header must be rejected")
	}
}

func TestSignatureHeaderName_KnownPlatforms(t *testing.T) {
	cases := map[string]string{
		"shopify":       "X-Shopify-Hmac-Sha256",
		"printify":      "X-Printify-Signature",
		"etsy":          "X-Etsy-Signature",
		"gumroad":       "X-Gumroad-Signature",
		"amazon_sp_api": "X-Amz-Sp-Signature",
		"amazon_kdp":    "X-Amz-Kdp-Signature",
	}
	for platform, want := range cases {
		if got := signatureHeaderName(platform); got != want {
			t.Errorf("signatureHeaderName(%q) = %q, want %q", platform, got, want)
		}
	}
}
