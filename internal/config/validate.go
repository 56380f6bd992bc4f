// CUE schema validation code
package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ValidateWithCue validates JSON catalog bytes against the embedded CUE schema.
func ValidateWithCue(name string, jsonBytes []byte) error {
	ctx := cuecontext.New()

	schemaBytes, err := content.ReadFile("catalog.cue")
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	schemaVal := ctx.CompileBytes(schemaBytes, cue.Filename("catalog.cue"))
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Catalog"))

	configVal := ctx.CompileBytes(jsonBytes, cue.Filename(name))
	if configVal.Err() != nil {
		return fmt.Errorf("cannot parse catalog %s: %w", name, configVal.Err())
	}

	final := def.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("catalog %s failed schema validation: %w", name, err)
	}
	return nil
}
