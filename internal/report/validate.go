package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"coretriage/internal/config"
)

//go:embed schema.cue
var schemaCUE string

// Validator checks raw reports against the strict report schema with the
// configured string limits. Construct once; safe for concurrent use.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the embedded schema and binds the length limits.
func NewValidator(limits config.Limits) (*Validator, error) {
	ctx := cuecontext.New()

	root := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile report schema: %w", err)
	}

	root = root.FillPath(cue.ParsePath("limits"), ctx.Encode(map[string]int{
		"component":    limits.Component,
		"path":         limits.Path,
		"buildID":      limits.BuildID,
		"fingerprint":  limits.Fingerprint,
		"functionName": limits.FunctionName,
	}))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("bind report limits: %w", err)
	}

	schema := root.LookupPath(cue.ParsePath("#Report"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("lookup report schema: %w", err)
	}

	return &Validator{ctx: ctx, schema: schema}, nil
}

// Validate repairs and validates a raw report in place.
//
// The JIT repair pass runs first; rejecting a report because of frames that
// merely called into JIT-compiled code would discard the still-useful stack
// above them. Then the report is checked strictly against the schema
// (collecting every violation), and finally exactly one crash thread is
// required.
//
// Returns *SchemaError for field-level violations, *ProcessError for
// crash-thread ambiguity, nil when the report is clean. A validation failure
// aborts processing of this report only.
func (v *Validator) Validate(r *RawReport) error {
	NormalizeJIT(r)

	if errs := v.schemaViolations(r); len(errs) > 0 {
		return &SchemaError{Violations: errs}
	}

	// Just to be sure there is exactly one crash thread.
	if _, err := CrashThread(r.Stacktrace); err != nil {
		return err
	}

	return nil
}

// schemaViolations returns all schema errors found (does not fail-fast).
func (v *Validator) schemaViolations(r *RawReport) []ValidationError {
	data, err := json.Marshal(r)
	if err != nil {
		return []ValidationError{{
			Message: fmt.Sprintf("encode report: %v", err),
			Code:    ErrMalformedReport,
		}}
	}

	doc := v.ctx.CompileBytes(data, cue.Filename("report.json"))
	if err := doc.Err(); err != nil {
		return []ValidationError{{
			Message: fmt.Sprintf("malformed report: %v", err),
			Code:    ErrMalformedReport,
		}}
	}

	unified := v.schema.Unify(doc)
	err = unified.Validate(cue.Concrete(true), cue.Final())
	if err == nil {
		return nil
	}

	var violations []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		violations = append(violations, ValidationError{
			Field:   pathString(e.Path()),
			Message: fmt.Sprintf(format, args...),
			Code:    ErrSchemaConstraint,
		})
	}
	return violations
}

// pathString renders a CUE error path ("stacktrace", "0", "frames", "2",
// "address") as a field reference.
func pathString(parts []string) string {
	return strings.Join(parts, ".")
}
