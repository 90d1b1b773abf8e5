// Package bridge is the command surface for a paired Caseta bridge.
//
// A Bridge composes the credential store, the TLS transport, the
// request correlator and the device catalog into the operations
// callers actually want: list devices, read state, switch and dim,
// activate scenes. Every operation requires a live session; when the
// connection drops the Bridge fails outstanding requests, marks the
// catalog stale and reports NotConnected until the caller reconnects.
// Reconnection policy belongs to the caller (see pkg/connection).
package bridge
