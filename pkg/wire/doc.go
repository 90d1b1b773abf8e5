// Package wire defines the LEAP message model and JSON codec.
//
// LEAP (Lutron Extensible Application Protocol) messages are JSON
// documents exchanged over a TLS connection, one document per
// CRLF-terminated line. Every message carries a communique type,
// a header, and an optional body:
//
//	{
//	  "CommuniqueType": "ReadRequest",
//	  "Header": {"ClientTag": "<uuid>", "Url": "/device"},
//	  "Body": { ... }
//	}
//
// Requests carry a ClientTag chosen by the client; the bridge echoes
// the tag in the matching response. Inbound messages without a known
// tag are unsolicited subscription events. This tag matching is the
// protocol's only mechanism for distinguishing command replies from
// asynchronous notifications, so the model exposes messages as a
// single type inspected at the correlation boundary rather than as
// separate response and event types.
//
// The field names and resource URLs in this package mirror the
// bridge's published schema and must not be renamed.
package wire
