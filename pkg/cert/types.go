package cert

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// Identity names a paired bridge: where it lives and which CA it
// presented at pairing time. The fingerprint pins the relationship; a
// bridge at the same address presenting a different CA is treated as a
// replacement, not trusted silently.
type Identity struct {
	// Address is the bridge network address (host or host:port).
	Address string `json:"address"`

	// CAFingerprint is the SHA-256 fingerprint (hex) of the bridge CA
	// certificate. Empty means "don't check" on load.
	CAFingerprint string `json:"ca_fingerprint,omitempty"`
}

// Credential is the artifact set produced by pairing. All three blobs
// are PEM-encoded and treated as opaque by everything except the TLS
// layer.
type Credential struct {
	// PrivateKeyPEM is the client private key.
	PrivateKeyPEM []byte

	// CertificatePEM is the client certificate signed by the bridge.
	CertificatePEM []byte

	// CACertificatePEM is the bridge's CA certificate.
	CACertificatePEM []byte

	// PairedAt is when the pairing handshake completed.
	PairedAt time.Time
}

// Validate checks that all three blobs are parseable and that the
// private key belongs to the client certificate. A key from one
// pairing next to a certificate from another must not pass.
func (c *Credential) Validate() error {
	if c == nil {
		return ErrInvalidCredential
	}
	if _, err := ParseKeyPEM(c.PrivateKeyPEM); err != nil {
		return fmt.Errorf("%w: private key: %v", ErrInvalidCredential, err)
	}
	if _, err := ParseCertificatePEM(c.CertificatePEM); err != nil {
		return fmt.Errorf("%w: client certificate: %v", ErrInvalidCredential, err)
	}
	if _, err := ParseCertificatePEM(c.CACertificatePEM); err != nil {
		return fmt.Errorf("%w: CA certificate: %v", ErrInvalidCredential, err)
	}
	if _, err := tls.X509KeyPair(c.CertificatePEM, c.PrivateKeyPEM); err != nil {
		return fmt.Errorf("%w: key does not match certificate: %v", ErrInvalidCredential, err)
	}
	return nil
}

// CAFingerprint returns the SHA-256 fingerprint (hex) of the CA
// certificate's DER bytes.
func (c *Credential) CAFingerprint() (string, error) {
	cert, err := ParseCertificatePEM(c.CACertificatePEM)
	if err != nil {
		return "", fmt.Errorf("%w: CA certificate: %v", ErrInvalidCredential, err)
	}
	return Fingerprint(cert), nil
}

// TLSCertificate returns the client key pair in the form the TLS layer
// needs to present it.
func (c *Credential) TLSCertificate() (tls.Certificate, error) {
	pair, err := tls.X509KeyPair(c.CertificatePEM, c.PrivateKeyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return pair, nil
}

// CAPool returns a pool containing only the bridge CA, for verifying
// the bridge's certificate chain. The bridge CA is self-issued and
// device-specific; public roots never apply.
func (c *Credential) CAPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(c.CACertificatePEM) {
		return nil, fmt.Errorf("%w: CA certificate not parseable", ErrInvalidCredential)
	}
	return pool, nil
}
