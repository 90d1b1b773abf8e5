// Package cert manages the credential produced by pairing with a
// bridge: the client private key, the client certificate signed by the
// bridge, and the bridge's own CA certificate.
//
// Credentials are held as opaque PEM blobs. This package owns them
// exclusively; other components borrow a parsed form (a
// tls.Certificate, a CA pool, a fingerprint) for the duration of a
// connection rather than copying key bytes around.
//
// Two store implementations exist: FileStore persists the blobs as
// separate PEM artifacts in one directory with atomic replacement on
// re-pairing, and MemoryStore backs tests.
package cert
