package core

import (
	"context"
	"sync"
)

// SetCredentials replaces the pair and persists it. The new access token is
// visible to the next dispatch before persistence returns. Setting the pair
// already held is a no-op.
func (c *Client) SetCredentials(ctx context.Context, accessToken, refreshToken string) error {
	if c == nil {
		return badInputError("core: client is nil")
	}
	return c.storeCredentials(ctx, CredentialPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}.normalized())
}

// ClearCredentials drops the pair from memory and persistence.
func (c *Client) ClearCredentials(ctx context.Context) error {
	if c == nil {
		return badInputError("core: client is nil")
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.creds = CredentialPair{}
	c.generation++
	c.mu.Unlock()

	return c.clearPersisted(ctx)
}

func (c *Client) AccessToken() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.AccessToken
}

func (c *Client) RefreshToken() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.RefreshToken
}

// Credentials returns a snapshot of the pair and whether any token is held.
func (c *Client) Credentials() (CredentialPair, bool) {
	if c == nil {
		return CredentialPair{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds, !c.creds.IsZero()
}

func (c *Client) storeCredentials(ctx context.Context, pair CredentialPair) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	if c.creds == pair {
		c.mu.Unlock()
		return nil
	}
	c.creds = pair
	c.generation++
	c.mu.Unlock()

	if pair.IsZero() {
		return c.clearPersisted(ctx)
	}
	if err := c.persistence.Save(ctx, pair); err != nil {
		c.logError(ctx, "credential persistence save failed", map[string]any{"error": err.Error()})
		return persistenceError(err, "core: failed to persist credentials")
	}
	return nil
}

// clearPersisted expects persistMu to be held.
func (c *Client) clearPersisted(ctx context.Context) error {
	if err := c.persistence.Clear(ctx); err != nil {
		c.logError(ctx, "credential persistence clear failed", map[string]any{"error": err.Error()})
		return persistenceError(err, "core: failed to clear persisted credentials")
	}
	return nil
}

func (c *Client) restoreCredentials(ctx context.Context) {
	pair, ok, err := c.persistence.Load(ctx)
	if err != nil {
		c.logWarn(ctx, "credential persistence load failed; starting logged out", map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		return
	}
	pair = pair.normalized()
	if pair.AccessToken == "" {
		return
	}
	c.mu.Lock()
	c.creds = pair
	c.mu.Unlock()
	c.logDebug(ctx, "credentials restored", map[string]any{
		"has_refresh_token": pair.RefreshToken != "",
	})
}

// MemoryCredentialPersistence keeps the pair in process memory. It is the
// default backend and is safe for concurrent use.
type MemoryCredentialPersistence struct {
	mu     sync.RWMutex
	pair   CredentialPair
	stored bool
	saves  int
	clears int
}

func NewMemoryCredentialPersistence() *MemoryCredentialPersistence {
	return &MemoryCredentialPersistence{}
}

func (m *MemoryCredentialPersistence) Load(context.Context) (CredentialPair, bool, error) {
	if m == nil {
		return CredentialPair{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, m.stored, nil
}

func (m *MemoryCredentialPersistence) Save(_ context.Context, pair CredentialPair) error {
	if m == nil {
		return badInputError("core: memory persistence is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = pair
	m.stored = true
	m.saves++
	return nil
}

func (m *MemoryCredentialPersistence) Clear(context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = CredentialPair{}
	m.stored = false
	m.clears++
	return nil
}

// Writes reports how many Save and Clear calls reached the backend.
func (m *MemoryCredentialPersistence) Writes() (saves int, clears int) {
	if m == nil {
		return 0, 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves, m.clears
}
