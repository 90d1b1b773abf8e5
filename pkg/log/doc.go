// Package log provides structured protocol logging for LEAP sessions.
//
// This package defines the Logger interface and Event types for
// capturing protocol-level events at multiple layers (transport, wire,
// session). It is separate from operational logging (slog) - protocol
// capture provides a complete machine-readable event trace for
// debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/leap/bridge.leaplog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/leap/bridge.leaplog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Session: connection and pairing state changes (StateChangeEvent)
//
// Errors at any layer use a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with integer keys for compactness; the
// Reader type streams them back with optional filtering.
package log
