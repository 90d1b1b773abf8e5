package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/leap-protocol/leap-go/pkg/cert"
)

// Well-known bridge ports.
const (
	// ControlPort is the LEAP control port on a paired bridge.
	ControlPort = 8081

	// PairingPort is the unauthenticated pairing port.
	PairingPort = 8083
)

// NewClientTLSConfig builds the TLS configuration for a session with a
// paired bridge: present the pairing-issued client certificate, verify
// the bridge's chain against the stored CA, and pin the CA fingerprint.
//
// Hostname verification is disabled: the bridge's certificate names
// the device, not a DNS name. The custom callback performs all peer
// verification instead.
func NewClientTLSConfig(credential *cert.Credential) (*tls.Config, error) {
	clientCert, err := credential.TLSCertificate()
	if err != nil {
		return nil, err
	}
	caPool, err := credential.CAPool()
	if err != nil {
		return nil, err
	}
	pin, err := credential.CAFingerprint()
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      caPool,

		// Hostname verification replaced by verifyBridgePeer.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyBridgePeer(caPool, pin),
	}, nil
}

// NewPairingTLSConfig builds the TLS configuration for the pairing
// port. No trust anchor exists before pairing completes, so the
// bridge's self-signed certificate is accepted; possession of the
// physical button is what authenticates the exchange.
func NewPairingTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
	}
}

// verifyBridgePeer verifies the bridge's certificate chain against the
// stored CA pool and pins the CA fingerprint captured at pairing time.
func verifyBridgePeer(caPool *x509.CertPool, caPin string) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("bridge presented no certificate")
		}

		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("failed to parse bridge certificate: %w", err)
		}

		intermediates := x509.NewCertPool()
		pinMatched := false
		for _, raw := range rawCerts[1:] {
			ic, err := x509.ParseCertificate(raw)
			if err != nil {
				continue
			}
			intermediates.AddCert(ic)
			if cert.Fingerprint(ic) == caPin {
				pinMatched = true
			}
		}
		// Some bridge firmware sends only the leaf; the pin then has to
		// match the leaf's issuer in our pool, checked below via chain
		// verification plus a leaf-level pin fallback.
		if cert.Fingerprint(leaf) == caPin {
			pinMatched = true
		}

		opts := x509.VerifyOptions{
			Roots:         caPool,
			Intermediates: intermediates,
			CurrentTime:   time.Now(),
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}
		chains, err := leaf.Verify(opts)
		if err != nil {
			return fmt.Errorf("bridge certificate chain verification failed: %w", err)
		}

		if !pinMatched {
			for _, chain := range chains {
				for _, c := range chain {
					if cert.Fingerprint(c) == caPin {
						pinMatched = true
					}
				}
			}
		}
		if !pinMatched {
			return fmt.Errorf("bridge CA fingerprint does not match pinned value")
		}
		return nil
	}
}
