package ir

// Version constants reported by the CLI and stamped on snapshots.
const (
	// WireVersion is the query/entity wire format version.
	WireVersion = "1"

	// Version is the duelsync release version.
	Version = "0.1.0"
)
