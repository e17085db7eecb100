// Package audit implements async event dispatching for security-relevant operations.
//
// [Sink] implementations consume events (channel, JSON lines, slog, no-op) and
// [Dispatcher] relays them from the engine through a bounded buffer, either
// dropping or blocking when the buffer is full.
//
// The package does not decide which events to emit; the engine does. It never
// filters events and performs no I/O beyond what a caller-supplied sink does.
package audit
