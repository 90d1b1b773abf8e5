// Package pairing obtains a client credential from a bridge.
//
// Pairing talks to the bridge's dedicated pairing port over TLS
// without verification, since no trust anchor exists yet. The client
// generates an RSA key and a PKCS#10 request and submits it; the
// bridge refuses to sign until its physical button is pressed. The
// coordinator keeps resubmitting with backoff inside a fixed window
// and gives up with ErrPairingTimedOut after it. A successful
// exchange yields the signed client certificate and the bridge's CA,
// both captured verbatim and persisted to the store before Pair
// returns.
package pairing
