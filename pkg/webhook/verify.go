package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// verifySignature checks the platform-specific HMAC-SHA256 header against
// body using a constant-time comparison, following the same
// compute-then-subtle.ConstantTimeCompare shape platform webhook verifiers
// in this pack use.
func verifySignature(platform, secret string, body []byte, header string) bool {
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	switch platform {
	case "shopify":
		expected := base64.StdEncoding.EncodeToString(sum)
		return hmac.Equal([]byte(expected), []byte(header))
	default:
		expected := hex.EncodeToString(sum)
		return hmac.Equal([]byte(expected), []byte(header))
	}
}

// signatureHeaderName returns the header a platform carries its webhook
// signature in.
func signatureHeaderName(platform string) string {
	switch platform {
	case "shopify":
		return "X-Shopify-Hmac-Sha256"
	case "printify":
		return "X-Printify-Signature"
	case "etsy":
		return "X-Etsy-Signature"
	case "gumroad":
		return "X-Gumroad-Signature"
	case "amazon_sp_api":
		return "X-Amz-Sp-Signature"
	case "amazon_kdp":
		return "X-Amz-Kdp-Signature"
	default:
		return "X-Webhook-Signature"
	}
}
