package leaptest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/leap-protocol/leap-go/pkg/cert"
)

// Authority is a self-issued CA playing the role of a bridge's
// device-specific root. It issues the server certificate the fake
// bridge presents and the client certificates a paired client would
// hold.
type Authority struct {
	caCert *x509.Certificate
	caKey  *rsa.PrivateKey
	caPEM  []byte
}

// NewAuthority generates a fresh CA.
func NewAuthority() (*Authority, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Fake Bridge Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &Authority{
		caCert: caCert,
		caKey:  key,
		caPEM:  cert.EncodeCertificatePEM(der),
	}, nil
}

// CAPEM returns the CA certificate in PEM form.
func (a *Authority) CAPEM() []byte {
	return a.caPEM
}

// issue signs a leaf certificate for the given public key.
func (a *Authority) issue(template *x509.Certificate, pub any) ([]byte, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, a.caCert, pub, a.caKey)
	if err != nil {
		return nil, err
	}
	return cert.EncodeCertificatePEM(der), nil
}

// ServerTLSConfig builds the TLS configuration the fake bridge's
// control port listens with: a CA-signed server certificate and
// required client certificate verification, like a real bridge.
func (a *Authority) ServerTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Fake Bridge"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	certPEM, err := a.issue(template, &key.PublicKey)
	if err != nil {
		return nil, err
	}
	pair, err := tls.X509KeyPair(certPEM, cert.EncodeKeyPEM(key))
	if err != nil {
		return nil, err
	}

	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(a.caCert)

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pair},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientCAs,
	}, nil
}

// ClientCredential issues a client certificate and wraps it in the
// credential a completed pairing would have stored.
func (a *Authority) ClientCredential() (*cert.Credential, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "leap-go-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	certPEM, err := a.issue(template, &key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &cert.Credential{
		PrivateKeyPEM:    cert.EncodeKeyPEM(key),
		CertificatePEM:   certPEM,
		CACertificatePEM: a.caPEM,
		PairedAt:         time.Now(),
	}, nil
}

// SignCSR signs a PEM-encoded PKCS#10 request and returns the client
// certificate in PEM form, the way the bridge answers a pairing CSR.
func (a *Authority) SignCSR(csrPEM []byte) ([]byte, error) {
	csr, err := cert.ParseCSRPEM(csrPEM)
	if err != nil {
		return nil, err
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("invalid CSR signature: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(4),
		Subject:      csr.Subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	return a.issue(template, csr.PublicKey)
}
