package cert

import "errors"

// Store errors.
var (
	// ErrNotPaired indicates no credential exists for the identity.
	ErrNotPaired = errors.New("not paired with this bridge")

	// ErrIdentityMismatch indicates the stored CA fingerprint disagrees
	// with the expected one for the same address. The bridge was likely
	// replaced; re-pairing is required.
	ErrIdentityMismatch = errors.New("bridge CA fingerprint mismatch")

	// ErrInvalidCredential indicates a credential blob failed to parse.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Store defines the interface for credential storage.
// Implementations must be safe for concurrent access.
type Store interface {
	// Load returns the credential for the identity's address.
	// Returns ErrNotPaired when no credential exists for that address,
	// and ErrIdentityMismatch when identity.CAFingerprint is non-empty
	// and disagrees with the fingerprint recorded at pairing time.
	Load(identity Identity) (*Credential, error)

	// Save persists a credential for the identity's address, replacing
	// any prior one atomically. The stored fingerprint is derived from
	// the credential's CA certificate, not taken from the identity.
	Save(identity Identity, cred *Credential) error

	// Delete removes the credential for the identity's address.
	// Deleting an absent credential is not an error.
	Delete(identity Identity) error

	// Identity returns the stored identity (address plus CA
	// fingerprint), or ErrNotPaired if nothing is stored.
	Identity() (Identity, error)
}
