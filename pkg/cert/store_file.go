package cert

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Artifact file names, matching the layout the pairing utility has
// always produced.
const (
	keyFile  = "caseta.key"
	certFile = "caseta.crt"
	caFile   = "caseta-bridge.crt"
	metaFile = "bridge.json"
)

const credentialDirPrefix = "credential-"

// bridgeMetadata records which bridge the credential belongs to and
// which revision directory holds its artifacts. An empty CredentialDir
// means the artifacts sit flat in the store directory, the layout
// older stores used.
type bridgeMetadata struct {
	Address       string    `json:"address"`
	CAFingerprint string    `json:"ca_fingerprint"`
	PairedAt      time.Time `json:"paired_at"`
	CredentialDir string    `json:"credential_dir,omitempty"`
}

// FileStore persists one credential under a directory. Each Save
// writes the PEM artifacts into a fresh revision subdirectory and then
// renames the metadata file over the old one. That rename is the only
// commit point: until it lands, the metadata still points at the prior
// revision, so a crash anywhere mid-save leaves the prior credential
// loadable in full.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a file-based credential store rooted at dir.
// The directory is created on first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load returns the stored credential for the identity's address.
func (s *FileStore) Load(identity Identity) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMetadata()
	if err != nil {
		return nil, err
	}
	if identity.Address != "" && meta.Address != identity.Address {
		return nil, fmt.Errorf("%w: stored credential is for %s", ErrNotPaired, meta.Address)
	}

	cred, err := s.readArtifacts(meta)
	if err != nil {
		return nil, err
	}

	if identity.CAFingerprint != "" {
		actual, err := cred.CAFingerprint()
		if err != nil {
			return nil, err
		}
		if actual != identity.CAFingerprint {
			return nil, fmt.Errorf("%w: have %s, expected %s",
				ErrIdentityMismatch, actual, identity.CAFingerprint)
		}
	}

	return cred, nil
}

// Save persists the credential, atomically replacing any prior one.
func (s *FileStore) Save(identity Identity, cred *Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	fingerprint, err := cred.CAFingerprint()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	// The prior revision stays on disk until the new metadata lands.
	var prior *bridgeMetadata
	if meta, err := s.readMetadata(); err == nil {
		prior = meta
	}

	pairedAt := cred.PairedAt
	if pairedAt.IsZero() {
		pairedAt = time.Now()
	}
	revision := fmt.Sprintf("%s%d", credentialDirPrefix, time.Now().UnixNano())
	meta := bridgeMetadata{
		Address:       identity.Address,
		CAFingerprint: fingerprint,
		PairedAt:      pairedAt,
		CredentialDir: revision,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	// Stage the revision: invisible to readers until the metadata
	// rename, the sole commit point.
	revDir := filepath.Join(s.dir, revision)
	if err := os.Mkdir(revDir, 0700); err != nil {
		return fmt.Errorf("failed to stage credential revision: %w", err)
	}
	for _, a := range []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{keyFile, cred.PrivateKeyPEM, 0600},
		{certFile, cred.CertificatePEM, 0644},
		{caFile, cred.CACertificatePEM, 0644},
	} {
		if err := os.WriteFile(filepath.Join(revDir, a.name), a.data, a.perm); err != nil {
			_ = os.RemoveAll(revDir)
			return fmt.Errorf("failed to stage %s: %w", a.name, err)
		}
	}

	metaTmp := filepath.Join(s.dir, metaFile+".tmp")
	if err := os.WriteFile(metaTmp, metaData, 0644); err != nil {
		_ = os.RemoveAll(revDir)
		return fmt.Errorf("failed to stage %s: %w", metaFile, err)
	}
	if err := os.Rename(metaTmp, filepath.Join(s.dir, metaFile)); err != nil {
		_ = os.Remove(metaTmp)
		_ = os.RemoveAll(revDir)
		return fmt.Errorf("failed to commit %s: %w", metaFile, err)
	}

	// Committed. Old artifacts are garbage now; removal is best effort.
	if prior != nil {
		s.removeArtifacts(prior)
	}
	return nil
}

// Delete removes the stored credential. Removing the metadata commits
// the deletion; the artifacts are cleaned up after.
func (s *FileStore) Delete(Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMetadata()
	if errors.Is(err, ErrNotPaired) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.dir, metaFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.removeArtifacts(meta)
	return nil
}

// Identity returns the stored bridge identity.
func (s *FileStore) Identity() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMetadata()
	if err != nil {
		return Identity{}, err
	}
	return Identity{Address: meta.Address, CAFingerprint: meta.CAFingerprint}, nil
}

func (s *FileStore) readMetadata() (*bridgeMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metaFile))
	if os.IsNotExist(err) {
		return nil, ErrNotPaired
	}
	if err != nil {
		return nil, err
	}

	var meta bridgeMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt credential metadata: %w", err)
	}
	return &meta, nil
}

// artifactDir resolves where a revision's artifacts live. Metadata
// without a CredentialDir points at the flat layout of older stores.
func (s *FileStore) artifactDir(meta *bridgeMetadata) string {
	if meta.CredentialDir == "" {
		return s.dir
	}
	return filepath.Join(s.dir, meta.CredentialDir)
}

func (s *FileStore) readArtifacts(meta *bridgeMetadata) (*Credential, error) {
	dir := s.artifactDir(meta)
	cred := &Credential{PairedAt: meta.PairedAt}
	for _, a := range []struct {
		name string
		dest *[]byte
	}{
		{keyFile, &cred.PrivateKeyPEM},
		{certFile, &cred.CertificatePEM},
		{caFile, &cred.CACertificatePEM},
	} {
		data, err := os.ReadFile(filepath.Join(dir, a.name))
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing %s", ErrNotPaired, a.name)
		}
		if err != nil {
			return nil, err
		}
		*a.dest = data
	}

	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return cred, nil
}

func (s *FileStore) removeArtifacts(meta *bridgeMetadata) {
	if meta.CredentialDir != "" {
		if strings.HasPrefix(meta.CredentialDir, credentialDirPrefix) {
			_ = os.RemoveAll(filepath.Join(s.dir, meta.CredentialDir))
		}
		return
	}
	for _, name := range []string{keyFile, certFile, caFile} {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
}

// Verify FileStore implements Store.
var _ Store = (*FileStore)(nil)
