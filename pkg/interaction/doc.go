// Package interaction correlates LEAP requests with their responses.
//
// Every request carries a unique ClientTag; the bridge echoes the tag
// on exactly one response. The Client tracks outstanding tags and
// routes each inbound message either to the request that is waiting
// for it or, when the message carries no tag, to the registered event
// handler. A tagged message whose tag is unknown (the request was
// abandoned, or the tag was never issued) is dropped.
//
// The Client does not own the connection. It is fed inbound messages
// via HandleMessage and notified of transport loss via FailAll, which
// resolves every outstanding request with the given error.
package interaction
