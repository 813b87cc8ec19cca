package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validation error codes (E100-E199)
const (
	ErrSchemaViolation = "E101" // job does not satisfy #Job
	ErrInvalidMode     = "E102" // mode parameters rejected
	ErrInvalidGrid     = "E103" // grid cannot be built
	ErrSchemaLoad      = "E199" // embedded schema failed to compile
)

// ValidationError is one problem found in a job.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors joins several validation errors into one error.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the job against the embedded schema, then checks that
// the mode and grid can actually be built. Returns all errors found.
func (j *Job) Validate() []ValidationError {
	errs := validateSchema(j)
	if len(errs) > 0 {
		return errs
	}

	if _, err := j.ResolveMode(); err != nil {
		errs = append(errs, ValidationError{Field: "mode", Message: err.Error(), Code: ErrInvalidMode})
	}
	if _, err := j.TileGrid(); err != nil {
		errs = append(errs, ValidationError{Field: "grid", Message: err.Error(), Code: ErrInvalidGrid})
	}
	return errs
}

func validateSchema(j *Job) []ValidationError {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Message: err.Error(), Code: ErrSchemaLoad}}
	}
	job := schema.LookupPath(cue.ParsePath("#Job"))

	v := job.Unify(ctx.Encode(j))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		errs = append(errs, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Code:    ErrSchemaViolation,
		})
	}
	return errs
}
