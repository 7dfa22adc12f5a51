package provider

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// KeyCache fetches the provider's webhook verification keys and keeps them
// for a bounded interval so signature checks do not hit the network on every
// delivery.
type KeyCache struct {
	mu        sync.Mutex
	url       string
	ttl       time.Duration
	client    *http.Client
	keys      []ed25519.PublicKey
	fetchedAt time.Time
	now       func() time.Time
}

func NewKeyCache(url string, ttl time.Duration) *KeyCache {
	return &KeyCache{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Crv string `json:"crv"`
		X   string `json:"x"`
	} `json:"keys"`
}

// Keys returns the cached key set, refreshing it once the TTL has lapsed.
// A failed refresh keeps serving the previous set if one exists.
func (c *KeyCache) Keys(ctx context.Context) ([]ed25519.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.keys, nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		if len(c.keys) > 0 {
			return c.keys, nil
		}
		return nil, err
	}

	c.keys = keys
	c.fetchedAt = c.now()
	return c.keys, nil
}

// Reset drops the cached set, forcing a refetch on the next lookup.
func (c *KeyCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = nil
	c.fetchedAt = time.Time{}
}

func (c *KeyCache) fetch(ctx context.Context) ([]ed25519.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building key request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching webhook keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook key endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding webhook keys: %w", err)
	}

	var keys []ed25519.PublicKey
	for _, key := range doc.Keys {
		if key.Kty != "OKP" || key.Crv != "Ed25519" {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(key.X)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			continue
		}
		keys = append(keys, ed25519.PublicKey(raw))
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("webhook key endpoint returned no usable keys")
	}
	return keys, nil
}
