package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-apiclient/core"
)

// Sealer encrypts and decrypts single token values.
type Sealer interface {
	Seal(value string) (string, error)
	Open(value string) (string, error)
}

// SealedPersistence encrypts the credential pair before it reaches the
// wrapped backend and decrypts it on load.
type SealedPersistence struct {
	next           core.CredentialPersistence
	sealer         Sealer
	allowPlaintext bool
}

var _ core.CredentialPersistence = (*SealedPersistence)(nil)

type PersistenceOption func(*SealedPersistence)

// AllowPlaintext accepts values written before sealing was enabled. They are
// sealed on the next Save.
func AllowPlaintext() PersistenceOption {
	return func(p *SealedPersistence) {
		p.allowPlaintext = true
	}
}

func NewSealedPersistence(next core.CredentialPersistence, sealer Sealer, opts ...PersistenceOption) (*SealedPersistence, error) {
	if next == nil {
		return nil, fmt.Errorf("security: credential persistence is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("security: sealer is required")
	}
	persistence := &SealedPersistence{next: next, sealer: sealer}
	for _, opt := range opts {
		if opt != nil {
			opt(persistence)
		}
	}
	return persistence, nil
}

func (p *SealedPersistence) Load(ctx context.Context) (core.CredentialPair, bool, error) {
	stored, ok, err := p.next.Load(ctx)
	if err != nil || !ok {
		return core.CredentialPair{}, ok, err
	}
	access, err := p.open(stored.AccessToken)
	if err != nil {
		return core.CredentialPair{}, false, err
	}
	refresh, err := p.open(stored.RefreshToken)
	if err != nil {
		return core.CredentialPair{}, false, err
	}
	return core.CredentialPair{AccessToken: access, RefreshToken: refresh}, true, nil
}

func (p *SealedPersistence) Save(ctx context.Context, pair core.CredentialPair) error {
	access, err := p.sealer.Seal(pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := p.sealer.Seal(pair.RefreshToken)
	if err != nil {
		return err
	}
	return p.next.Save(ctx, core.CredentialPair{AccessToken: access, RefreshToken: refresh})
}

func (p *SealedPersistence) Clear(ctx context.Context) error {
	return p.next.Clear(ctx)
}

func (p *SealedPersistence) open(value string) (string, error) {
	plaintext, err := p.sealer.Open(value)
	if errors.Is(err, ErrNotSealed) && p.allowPlaintext {
		return value, nil
	}
	return plaintext, err
}
