package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func TestProviderRegistry(t *testing.T) {
	r := NewProviderRegistry(newMockAdapter("zeta"), newMockAdapter("alpha"))

	a, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderType("alpha"), a.Type())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	assert.Equal(t, []domain.ProviderType{"alpha", "zeta"}, r.Providers())
}

func TestProviderRegistry_RegisterReplaces(t *testing.T) {
	first := newMockAdapter("alpha")
	second := newMockAdapter("alpha")
	r := NewProviderRegistry(first)
	r.Register(second)

	a, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, second, a)
	assert.Len(t, r.Providers(), 1)
}
