package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestTokenPair_IsExpired_ZeroExpiry tests that zero expiry means never expires
func TestTokenPair_IsExpired_ZeroExpiry(t *testing.T) {
	token := &TokenPair{AccessToken: "test-token"}

	assert.False(t, token.IsExpired(time.Now(), time.Minute), "Token with zero expiry should not be expired")
}

func TestTokenPair_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		skew   time.Duration
		want   bool
	}{
		{"future", now.Add(time.Hour), 0, false},
		{"past", now.Add(-time.Hour), 0, true},
		{"exactly now", now, 0, true},
		{"within skew", now.Add(30 * time.Second), time.Minute, true},
		{"outside skew", now.Add(2 * time.Minute), time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &TokenPair{AccessToken: "a", Expiry: tt.expiry}
			assert.Equal(t, tt.want, token.IsExpired(now, tt.skew))
		})
	}
}

func TestTokenPair_Merge_KeepsRefreshToken(t *testing.T) {
	current := &TokenPair{
		AccessToken:  "old",
		RefreshToken: "refresh",
		Scopes:       []string{"activity"},
		AccountID:    "ABC",
	}
	refreshed := &TokenPair{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}

	merged := current.Merge(refreshed)

	assert.Equal(t, "new", merged.AccessToken)
	assert.Equal(t, "refresh", merged.RefreshToken)
	assert.Equal(t, []string{"activity"}, merged.Scopes)
	assert.Equal(t, "ABC", merged.AccountID)
	assert.Equal(t, "", refreshed.RefreshToken, "merge must not mutate its argument")
}

func TestTokenPair_Merge_RotatedRefreshToken(t *testing.T) {
	current := &TokenPair{AccessToken: "old", RefreshToken: "r1"}
	merged := current.Merge(&TokenPair{AccessToken: "new", RefreshToken: "r2"})

	assert.Equal(t, "r2", merged.RefreshToken)
	assert.True(t, merged.HasRefreshToken())
}
