package pairing

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leap-protocol/leap-go/internal/leaptest"
	"github.com/leap-protocol/leap-go/pkg/cert"
	"github.com/leap-protocol/leap-go/pkg/connection"
)

func verifyOptions(pool *x509.CertPool) x509.VerifyOptions {
	return x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
}

func fastBackoff() *connection.BackoffConfig {
	return &connection.BackoffConfig{
		Initial:    5 * time.Millisecond,
		Max:        10 * time.Millisecond,
		Multiplier: 2,
		Jitter:     0,
	}
}

func TestGenerateCSR(t *testing.T) {
	keyPEM, csrPEM, err := generateCSR("leap-go-test")
	require.NoError(t, err)

	_, err = cert.ParseKeyPEM(keyPEM)
	require.NoError(t, err)

	csr, err := cert.ParseCSRPEM(csrPEM)
	require.NoError(t, err)
	assert.Equal(t, "leap-go-test", csr.Subject.CommonName)
	assert.NoError(t, csr.CheckSignature())
}

func TestPairAfterRejections(t *testing.T) {
	authority, err := leaptest.NewAuthority()
	require.NoError(t, err)
	server, err := leaptest.NewPairingServer(authority, 3)
	require.NoError(t, err)
	defer server.Close()

	store := cert.NewMemoryStore()
	credential, err := Pair(context.Background(), Config{
		Address: server.Addr(),
		Store:   store,
		Backoff: fastBackoff(),
		Window:  10 * time.Second,
	})
	require.NoError(t, err)

	// Three rejections, then the accepted submission.
	assert.Equal(t, 4, server.Requests())

	require.NoError(t, credential.Validate())
	fingerprint, err := credential.CAFingerprint()
	require.NoError(t, err)
	wantFP, err := cert.FingerprintPEM(authority.CAPEM())
	require.NoError(t, err)
	assert.Equal(t, wantFP, fingerprint, "bridge CA captured verbatim")

	// The credential was persisted before Pair returned, under the
	// bridge's host and CA fingerprint.
	identity, err := store.Identity()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", identity.Address)
	assert.Equal(t, wantFP, identity.CAFingerprint)

	loaded, err := store.Load(cert.Identity{Address: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, credential.CertificatePEM, loaded.CertificatePEM)

	// The issued certificate chains to the bridge CA.
	pool, err := credential.CAPool()
	require.NoError(t, err)
	leaf, err := cert.ParseCertificatePEM(credential.CertificatePEM)
	require.NoError(t, err)
	_, err = leaf.Verify(verifyOptions(pool))
	assert.NoError(t, err)
}

func TestPairWindowElapsesWithoutButton(t *testing.T) {
	authority, err := leaptest.NewAuthority()
	require.NoError(t, err)
	// The button is never pressed.
	server, err := leaptest.NewPairingServer(authority, 1000)
	require.NoError(t, err)
	defer server.Close()

	store := cert.NewMemoryStore()
	_, err = Pair(context.Background(), Config{
		Address: server.Addr(),
		Store:   store,
		Backoff: fastBackoff(),
		Window:  200 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrPairingTimedOut)
	assert.Greater(t, server.Requests(), 1, "submissions were retried inside the window")

	// Nothing was persisted.
	_, err = store.Load(cert.Identity{})
	assert.ErrorIs(t, err, cert.ErrNotPaired)
}

func TestPairUnreachableBridge(t *testing.T) {
	dialErr := errors.New("no route to bridge")
	store := cert.NewMemoryStore()

	_, err := Pair(context.Background(), Config{
		Address: "192.0.2.1",
		Store:   store,
		Backoff: fastBackoff(),
		Window:  150 * time.Millisecond,
		Dialer: func(ctx context.Context, address string) (net.Conn, error) {
			return nil, dialErr
		},
	})
	require.ErrorIs(t, err, ErrPairingTimedOut)

	_, err = store.Load(cert.Identity{})
	assert.ErrorIs(t, err, cert.ErrNotPaired)
}

func TestPairValidatesConfig(t *testing.T) {
	_, err := Pair(context.Background(), Config{Store: cert.NewMemoryStore()})
	assert.ErrorIs(t, err, ErrPairingFailed)

	_, err = Pair(context.Background(), Config{Address: "127.0.0.1"})
	assert.ErrorIs(t, err, ErrPairingFailed)
}
