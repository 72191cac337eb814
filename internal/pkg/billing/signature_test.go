package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signBody(t *testing.T, body []byte, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test_1234"
	body := []byte(`{"order_id":"kwapps-abc","track_id":"TRK001","result":"CAPTURED"}`)
	validSig := signBody(t, body, secret)

	t.Run("ValidSignature", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(body, validSig, secret))
	})

	t.Run("UppercaseHexAccepted", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(body, strings.ToUpper(validSig), secret))
	})

	t.Run("SurroundingWhitespaceTrimmed", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(body, "  "+validSig+"\n", secret))
	})

	t.Run("TamperedBody", func(t *testing.T) {
		tampered := []byte(`{"order_id":"kwapps-abc","track_id":"TRK001","result":"NOT CAPTURED"}`)
		assert.False(t, VerifyWebhookSignature(tampered, validSig, secret))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, validSig, "whsec_other"))
	})

	t.Run("EmptySignature", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, "", secret))
	})

	t.Run("EmptySecret", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, validSig, ""))
	})

	t.Run("NonHexSignature", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, "not-a-hex-signature", secret))
	})

	t.Run("TruncatedSignature", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(body, validSig[:32], secret))
	})
}
