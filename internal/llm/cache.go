package llm

import (
	"sync"
)

type clientKey struct {
	apiKey string
	model  string
}

// ClientCache reuses provider clients keyed by (credential, model) so
// repeated calls under the same identity do not rebuild HTTP clients. One
// instance is constructed at process start and passed to everything that
// needs model access; correctness never depends on a cache hit.
type ClientCache struct {
	mu        sync.Mutex
	chat      map[clientKey]*ChatModel
	embedders map[clientKey]*Embedder
}

// NewClientCache creates an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{
		chat:      make(map[clientKey]*ChatModel),
		embedders: make(map[clientKey]*Embedder),
	}
}

// ChatModel returns the cached chat client for cfg, creating it on first
// use. A missing credential surfaces as ErrMissingAPIKey.
func (c *ClientCache) ChatModel(cfg ModelConfig) (*ChatModel, error) {
	resolved := cfg.Resolved()
	if resolved.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	key := clientKey{apiKey: resolved.APIKey, model: resolved.Model}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.chat[key]; ok {
		return client, nil
	}
	client, err := NewChatModel(resolved)
	if err != nil {
		return nil, err
	}
	c.chat[key] = client
	return client, nil
}

// Embedder returns the cached embedding client for cfg, creating it on
// first use.
func (c *ClientCache) Embedder(cfg ModelConfig, dimensions int) (*Embedder, error) {
	resolved := cfg.ResolvedEmbedding()
	if resolved.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	key := clientKey{apiKey: resolved.APIKey, model: resolved.Model}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.embedders[key]; ok {
		return client, nil
	}
	client, err := NewEmbedder(resolved, dimensions)
	if err != nil {
		return nil, err
	}
	c.embedders[key] = client
	return client, nil
}

// Clear drops every cached client.
func (c *ClientCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chat = make(map[clientKey]*ChatModel)
	c.embedders = make(map[clientKey]*Embedder)
}
