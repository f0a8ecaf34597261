package templates

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	inner *StaticStore
	calls int
}

func (c *countingStore) Get(ctx context.Context, templateID string) (string, error) {
	c.calls++
	return c.inner.Get(ctx, templateID)
}

func TestTemplateRenderer(t *testing.T) {
	store := NewStaticStore(map[string]string{
		"welcome": "Hello {{.Name}}, your workflow {{.Workflow}} is ready.",
		"plain":   "No placeholders here.",
		"broken":  "Hello {{.Name",
	})
	renderer := NewTemplateRenderer(store)
	ctx := context.Background()

	t.Run("RendersWithData", func(t *testing.T) {
		out, err := renderer.Render(ctx, "welcome", map[string]interface{}{
			"Name":     "Thabo",
			"Workflow": "nightly-sync",
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello Thabo, your workflow nightly-sync is ready.", out)
	})

	t.Run("RendersWithoutData", func(t *testing.T) {
		out, err := renderer.Render(ctx, "plain", nil)
		require.NoError(t, err)
		assert.Equal(t, "No placeholders here.", out)
	})

	t.Run("UnknownTemplate", func(t *testing.T) {
		_, err := renderer.Render(ctx, "missing", nil)
		assert.ErrorContains(t, err, "template not found")
	})

	t.Run("MalformedTemplate", func(t *testing.T) {
		_, err := renderer.Render(ctx, "broken", nil)
		assert.ErrorContains(t, err, "failed to parse template")
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	counting := &countingStore{inner: NewStaticStore(map[string]string{
		"alert": "Node {{.NodeID}} failed.",
	})}
	store := NewRedisStore(client, counting, time.Minute)
	ctx := context.Background()

	first, err := store.Get(ctx, "alert")
	require.NoError(t, err)
	second, err := store.Get(ctx, "alert")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.calls, "second lookup must come from the cache")

	// Expired entries fall back to the inner store.
	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "alert")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.calls)

	_, err = store.Get(ctx, "missing")
	assert.Error(t, err)
}
