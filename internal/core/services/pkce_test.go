package services

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier(t *testing.T) {
	t.Run("decodes to correct byte length", func(t *testing.T) {
		verifier, err := generateCodeVerifier()
		require.NoError(t, err)

		decoded, err := base64.RawURLEncoding.DecodeString(verifier)
		require.NoError(t, err)
		assert.Len(t, decoded, codeVerifierLength)
	})

	t.Run("uses base64url encoding without padding", func(t *testing.T) {
		verifier, err := generateCodeVerifier()
		require.NoError(t, err)

		assert.False(t, strings.ContainsAny(verifier, "=+/"))
	})

	t.Run("generates unique verifiers", func(t *testing.T) {
		verifiers := make(map[string]bool)
		for i := 0; i < 100; i++ {
			verifier, err := generateCodeVerifier()
			require.NoError(t, err)
			assert.False(t, verifiers[verifier], "should not generate duplicate verifiers")
			verifiers[verifier] = true
		}
	})
}

func TestGenerateCodeChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	// RFC 7636 appendix B test vector
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", generateCodeChallenge(verifier))

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), generateCodeChallenge(verifier))
}

func TestGenerateState(t *testing.T) {
	s1, err := generateState()
	require.NoError(t, err)
	s2, err := generateState()
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
	decoded, err := base64.RawURLEncoding.DecodeString(s1)
	require.NoError(t, err)
	assert.Len(t, decoded, stateLength)
}
