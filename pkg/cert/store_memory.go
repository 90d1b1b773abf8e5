package cert

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store implementation for tests.
type MemoryStore struct {
	mu       sync.Mutex
	identity Identity
	cred     *Credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored credential for the identity's address.
func (s *MemoryStore) Load(identity Identity) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil {
		return nil, ErrNotPaired
	}
	if identity.Address != "" && s.identity.Address != identity.Address {
		return nil, fmt.Errorf("%w: stored credential is for %s", ErrNotPaired, s.identity.Address)
	}
	if identity.CAFingerprint != "" && identity.CAFingerprint != s.identity.CAFingerprint {
		return nil, fmt.Errorf("%w: have %s, expected %s",
			ErrIdentityMismatch, s.identity.CAFingerprint, identity.CAFingerprint)
	}
	return s.cred, nil
}

// Save stores the credential, replacing any prior one.
func (s *MemoryStore) Save(identity Identity, cred *Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	fingerprint, err := cred.CAFingerprint()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = Identity{Address: identity.Address, CAFingerprint: fingerprint}
	s.cred = cred
	return nil
}

// Delete removes the stored credential.
func (s *MemoryStore) Delete(Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = Identity{}
	s.cred = nil
	return nil
}

// Identity returns the stored bridge identity.
func (s *MemoryStore) Identity() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return Identity{}, ErrNotPaired
	}
	return s.identity, nil
}

// Verify MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
