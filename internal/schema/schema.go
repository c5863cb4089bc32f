// Package schema compiles the CUE model schema into a model.Registry.
//
// The default schema is embedded; callers may load an alternative file
// to track models the client does not know at build time.
package schema

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/duelsync/internal/model"
)

//go:embed pistols.cue
var defaultSchema []byte

// Default compiles the embedded schema.
func Default() (*model.Registry, error) {
	return Compile("pistols.cue", defaultSchema)
}

// MustDefault is Default that panics on error. The embedded schema is
// covered by tests, so failure here is a build defect.
func MustDefault() *model.Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// Load compiles a schema file from disk.
func Load(path string) (*model.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(path, data)
}

// Compile parses CUE source and builds the registry. The source must define
// a concrete namespace string and a models struct.
func Compile(filename string, src []byte) (*model.Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	nsVal := v.LookupPath(cue.ParsePath("namespace"))
	if !nsVal.Exists() {
		return nil, &CompileError{Field: "namespace", Message: "namespace is required", Pos: v.Pos()}
	}
	namespace, err := nsVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("models"))
	if !modelsVal.Exists() {
		return nil, &CompileError{Field: "models", Message: "models are required", Pos: v.Pos()}
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []model.Spec
	for iter.Next() {
		spec, err := parseModel(namespace, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, &CompileError{Field: "models", Message: "at least one model is required", Pos: modelsVal.Pos()}
	}

	return model.NewRegistry(specs...)
}

func parseModel(namespace, name string, v cue.Value) (model.Spec, error) {
	spec := model.Spec{
		Name:   model.QualifiedName(namespace, name),
		Fields: make(map[string]model.Kind),
	}

	keysIter, err := v.LookupPath(cue.ParsePath("keys")).List()
	if err != nil {
		return spec, formatCUEError(err)
	}
	for keysIter.Next() {
		key, err := keysIter.Value().String()
		if err != nil {
			return spec, formatCUEError(err)
		}
		spec.Keys = append(spec.Keys, key)
	}

	fieldsIter, err := v.LookupPath(cue.ParsePath("fields")).Fields()
	if err != nil {
		return spec, formatCUEError(err)
	}
	for fieldsIter.Next() {
		kind, err := fieldsIter.Value().String()
		if err != nil {
			return spec, formatCUEError(err)
		}
		spec.Fields[fieldsIter.Label()] = model.Kind(kind)
	}

	return spec, nil
}

// CompileError is a schema error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
