// Package leaptest provides an in-process fake Caseta bridge for
// integration-style tests: a real TLS listener speaking newline JSON,
// a certificate authority that issues client credentials the way
// pairing would, and a pairing server that rejects until its
// simulated button press.
package leaptest
