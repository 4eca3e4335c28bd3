package ir

// Version constants for the stored result schema and the analysis.
const (
	// ResultVersion is the schema version of stored per-function results.
	ResultVersion = "1"

	// EngineVersion is the kernattr analysis version.
	EngineVersion = "0.1.0"
)
