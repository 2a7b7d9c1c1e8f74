package bridge

import "github.com/kingrea/editorbridge/internal/collect"

// ProtocolVersion identifies the bridge contract exposed via /health.
const ProtocolVersion = "1.0.0"

// Logger records bridge status information. It matches logging.Logger's
// signature.
type Logger interface {
	Printf(format string, args ...any)
}

// RunLister reports orchestrated runs for /runs.
type RunLister interface {
	Runs() []collect.Snapshot
}

// Health is the /health payload.
type Health struct {
	Status        string   `json:"status" cbor:"status"`
	Version       string   `json:"version" cbor:"version"`
	Addresses     []string `json:"addresses" cbor:"addresses"`
	Commands      []string `json:"commands" cbor:"commands"`
	InFlight      int64    `json:"in_flight" cbor:"in_flight"`
	UptimeSeconds int64    `json:"uptime_seconds" cbor:"uptime_seconds"`
}

// RunsResponse is the /runs payload.
type RunsResponse struct {
	Runs []collect.Snapshot `json:"runs" cbor:"runs"`
}
