package connectors

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // G505: providers sign webhooks with HMAC-SHA1
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// SignSHA1Base64 returns base64(HMAC-SHA1(key, body)).
func SignSHA1Base64(key, body []byte) string {
	mac := hmac.New(sha1.New, key)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignSHA256Hex returns hex(HMAC-SHA256(key, body)).
func SignSHA256Hex(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares signatures in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
