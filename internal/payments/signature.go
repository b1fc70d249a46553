package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Payment-Signature"

// Sign computes the webhook signature for a raw body.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks the processor's signature over the raw body
// using a constant-time compare.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("webhook secret is not configured")
	}
	if signature == "" {
		return fmt.Errorf("signature header is missing")
	}

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signature is not valid hex")
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	if !hmac.Equal(h.Sum(nil), expected) {
		return fmt.Errorf("invalid signature: body integrity check failed")
	}
	return nil
}
