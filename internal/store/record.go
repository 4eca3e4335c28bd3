package store

import (
	"errors"
	"fmt"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is the summary row of one pass execution.
type Run struct {
	// Seq orders runs by insertion. Assigned by the store.
	Seq int64
	ID  string
	// Module and Fingerprint identify the input module, fingerprinted
	// before the pass modified it.
	Module      string
	Fingerprint string
	// Target is the canonical JSON target description.
	Target        string
	ResultHash    string
	Changed       bool
	Rounds        int
	Updates       int
	Attributes    int
	Exhausted     bool
	EngineVersion string
	ResultVersion string
}

// FunctionResult is the final inferred state of one function in a run.
type FunctionResult struct {
	RunID string
	// Seq is the function's position in the module.
	Seq    int64
	Name   string
	CC     string
	Result map[string]any
}

// Record is everything persisted for one run.
type Record struct {
	Run       Run
	Functions []FunctionResult
	Trace     []engine.TraceEvent
}

// NewRecord builds the record of a finished run. fingerprint must be taken
// from the module before amdgpu.Run manifested into it.
func NewRecord(id, fingerprint string, cfg *target.Config, report *amdgpu.Report) (*Record, error) {
	if report == nil {
		return nil, fmt.Errorf("new record: nil report")
	}
	canonical := report.Canonical()
	hash, err := ir.ResultHash(canonical)
	if err != nil {
		return nil, fmt.Errorf("new record: %w", err)
	}
	targetJSON, err := marshalCanonical("target", cfg.Describe())
	if err != nil {
		return nil, fmt.Errorf("new record: %w", err)
	}

	rec := &Record{
		Run: Run{
			ID:            id,
			Module:        report.Module,
			Fingerprint:   fingerprint,
			Target:        targetJSON,
			ResultHash:    hash,
			Changed:       report.Changed,
			Rounds:        report.Rounds,
			Updates:       report.Updates,
			Attributes:    report.Attributes,
			Exhausted:     report.Exhausted,
			EngineVersion: ir.EngineVersion,
			ResultVersion: ir.ResultVersion,
		},
		Trace: report.Trace,
	}
	for i, fn := range canonical["functions"].([]any) {
		result := fn.(map[string]any)
		rec.Functions = append(rec.Functions, FunctionResult{
			RunID:  id,
			Seq:    int64(i),
			Name:   result["name"].(string),
			CC:     result["cc"].(string),
			Result: result,
		})
	}
	return rec, nil
}
