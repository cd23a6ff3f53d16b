package cli

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/consent/internal/harness"
)

//go:embed scenario.cue
var scenarioSchema string

// ValidationIssue is one problem found in a scenario file.
type ValidationIssue struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SchemaLoader checks scenario files against the embedded CUE schema.
// A loader is not safe for concurrent use.
type SchemaLoader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewSchemaLoader compiles the embedded scenario schema.
func NewSchemaLoader() (*SchemaLoader, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(scenarioSchema, cue.Filename("scenario.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling scenario schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	if !def.Exists() {
		return nil, fmt.Errorf("scenario schema has no #Scenario definition")
	}
	return &SchemaLoader{ctx: ctx, schema: def}, nil
}

// ValidateFile checks one scenario file.
//
// The file is first checked against the schema (field names, types, enums).
// Only a schema-clean file is then parsed by the harness, which adds the
// cross-field rules: one action per step, known context names and so on.
func (l *SchemaLoader) ValidateFile(path string) []ValidationIssue {
	data, err := os.ReadFile(path)
	if err != nil {
		return []ValidationIssue{{File: path, Code: ErrCodeNotFound, Message: err.Error()}}
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return issuesFromCUE(path, ErrCodeLoadFailed, err)
	}
	value := l.ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return issuesFromCUE(path, ErrCodeLoadFailed, err)
	}

	unified := l.schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return issuesFromCUE(path, ErrCodeSchema, err)
	}

	if _, err := harness.ParseScenario(data); err != nil {
		return []ValidationIssue{{File: path, Code: ErrCodeInvalidScenario, Message: err.Error()}}
	}
	return nil
}

// issuesFromCUE splits a CUE error list into one issue per error.
func issuesFromCUE(path, code string, err error) []ValidationIssue {
	var issues []ValidationIssue
	for _, e := range cueerrors.Errors(err) {
		issues = append(issues, ValidationIssue{
			File:    path,
			Line:    lineOf(e.Position()),
			Code:    code,
			Message: e.Error(),
		})
	}
	if len(issues) == 0 {
		issues = append(issues, ValidationIssue{File: path, Code: code, Message: err.Error()})
	}
	return issues
}

// lineOf extracts the line number from a CUE position.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}
