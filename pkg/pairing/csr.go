package pairing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"

	"github.com/leap-protocol/leap-go/pkg/cert"
)

// rsaKeyBits is the client key size. The bridges only accept
// RSA-2048 client certificates.
const rsaKeyBits = 2048

// generateCSR creates a fresh RSA key and a PKCS#10 request with the
// given common name. Both are returned PEM-encoded.
func generateCSR(commonName string) (keyPEM, csrPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate client key: %w", err)
	}

	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: commonName},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CSR: %w", err)
	}

	return cert.EncodeKeyPEM(key), cert.EncodeCSRPEM(der), nil
}
