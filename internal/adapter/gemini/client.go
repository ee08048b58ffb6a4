package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"paperlib/internal/settings"
)

var ErrMissingAPIKey = errors.New("gemini api key not configured")

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// clientCache holds one genai client and replaces it when the configured API
// key changes.
type clientCache struct {
	settings   SettingsProvider
	clientOpts []option.ClientOption

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

func newClientCache(svc SettingsProvider, opts []option.ClientOption) *clientCache {
	return &clientCache{settings: svc, clientOpts: opts}
}

func (c *clientCache) current(ctx context.Context) (*genai.Client, error) {
	s, err := c.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return c.getClient(ctx, s.GeminiAPIKey)
}

func (c *clientCache) getClient(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption{}, c.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	c.client = client
	c.currentKey = key
	return client, nil
}

func (c *clientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.currentKey = ""
	return err
}
