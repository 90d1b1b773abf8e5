// Package transport provides the LEAP transport layer: one persistent
// mutually-authenticated TLS connection to a bridge's control port,
// framing outbound JSON documents and decoding inbound ones.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON Messages             │
//	├────────────────────────────────┤
//	│   CRLF Line Framing            │
//	├────────────────────────────────┤
//	│   TLS (client cert + CA pin)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # TLS
//
// The client presents the certificate issued at pairing time and
// verifies the bridge against the CA captured then - never against a
// public trust root. The bridge's certificate carries no meaningful
// hostname, so built-in hostname verification is replaced by a chain
// check against the stored CA plus a SHA-256 fingerprint pin.
//
// # Lifecycle
//
// A Connection is read continuously by one goroutine; received frames
// are handed to the ConnectionHandler. Writers serialize on a mutex
// around frame writes. Any read or TLS failure closes the connection
// and reports the error; reconnecting is the caller's decision, never
// the transport's.
package transport
