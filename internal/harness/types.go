package harness

import (
	"github.com/roach88/georesolve/internal/engine"
	"github.com/roach88/georesolve/internal/record"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates that every assertion held.
	Pass bool

	// Inputs are the decoded input records, in batch order.
	Inputs []*record.GeoRecord

	// Records is the output batch in stored order.
	Records []*record.GeoRecord

	// Summary is the engine's report for the run.
	Summary engine.Summary

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
