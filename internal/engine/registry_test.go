package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newSpyStrategy("http.request"))
	registry.Register(newSpyStrategy("database.query"))

	strategy, ok := registry.Get("http.request")
	require.True(t, ok)
	assert.Equal(t, "http.request", strategy.Type())

	_, ok = registry.Get("email.notification")
	assert.False(t, ok)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	registry := NewRegistry()
	first := newSpyStrategy("http.request")
	second := newSpyStrategy("http.request")
	registry.Register(first)
	registry.Register(second)

	strategy, ok := registry.Get("http.request")
	require.True(t, ok)
	assert.Same(t, second, strategy)
}

func TestRegistry_TypesSorted(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newSpyStrategy("http.request"))
	registry.Register(newSpyStrategy("database.query"))
	registry.Register(newSpyStrategy("email.notification"))

	assert.Equal(t, []string{"database.query", "email.notification", "http.request"}, registry.Types())
}
