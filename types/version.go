package types

// Version is the canonical project version.
// The CLI, the telemetry frame contract and stored job reports share it.
const Version = "0.3.0"
