// Package connection supervises a bridge session's lifecycle.
//
// The transport never reconnects on its own and neither does the
// bridge facade: when the link drops, pending requests fail and the
// catalog goes stale until somebody dials again. That somebody is the
// Manager here. It owns a connect function, retries it with
// exponential backoff after a loss, and resets the backoff after
// every successful connect. Applications that want manual control
// simply don't use this package.
package connection
