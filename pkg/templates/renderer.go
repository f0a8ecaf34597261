package templates

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store resolves a template id to its source text.
type Store interface {
	Get(ctx context.Context, templateID string) (string, error)
}

// Renderer resolves and renders notification templates.
type Renderer interface {
	Render(ctx context.Context, templateID string, data map[string]interface{}) (string, error)
}

// StaticStore serves templates from an in-memory map.
type StaticStore struct {
	mu        sync.RWMutex
	templates map[string]string
}

func NewStaticStore(templates map[string]string) *StaticStore {
	if templates == nil {
		templates = make(map[string]string)
	}
	return &StaticStore{templates: templates}
}

func (s *StaticStore) Get(ctx context.Context, templateID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source, ok := s.templates[templateID]
	if !ok {
		return "", fmt.Errorf("template not found: %s", templateID)
	}
	return source, nil
}

func (s *StaticStore) Put(templateID, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[templateID] = source
}

// RedisStore is a lookaside cache over an inner store. Cache failures fall
// through to the inner store.
type RedisStore struct {
	client *redis.Client
	inner  Store
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, inner Store, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, inner: inner, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, templateID string) (string, error) {
	key := cacheKey(templateID)

	cached, err := s.client.Get(ctx, key).Result()
	if err == nil {
		return cached, nil
	}

	source, err := s.inner.Get(ctx, templateID)
	if err != nil {
		return "", err
	}

	s.client.Set(ctx, key, source, s.ttl)
	return source, nil
}

func cacheKey(templateID string) string {
	return fmt.Sprintf("template:source:%s", templateID)
}

// TemplateRenderer renders text/template sources resolved from a Store.
type TemplateRenderer struct {
	store Store
}

func NewTemplateRenderer(store Store) *TemplateRenderer {
	return &TemplateRenderer{store: store}
}

func (r *TemplateRenderer) Render(ctx context.Context, templateID string, data map[string]interface{}) (string, error) {
	source, err := r.store.Get(ctx, templateID)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(templateID).Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", templateID, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateID, err)
	}
	return buf.String(), nil
}
