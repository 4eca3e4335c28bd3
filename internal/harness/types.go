package harness

import "github.com/roach88/kernattr/internal/amdgpu"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// RunID is the ID the run was stored under.
	RunID string `json:"run_id"`

	// Fingerprint identifies the module as it was before the run.
	Fingerprint string `json:"fingerprint"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Report is the attributor run the assertions were evaluated against.
	Report *amdgpu.Report `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
