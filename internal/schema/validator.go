package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks documents against JSON schemas, caching compiled schemas
// so repeated validation of agent metadata stays cheap during hot reload.
type Validator struct {
	cache sync.Map // map[string]*gojsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks doc (a map, struct, or JSON string) against schemaData.
func (v *Validator) Validate(schemaData any, doc any) error {
	compiled, err := v.compile(schemaData)
	if err != nil {
		return fmt.Errorf("schema: invalid schema definition: %w", err)
	}

	var docLoader gojsonschema.JSONLoader
	if s, ok := doc.(string); ok {
		docLoader = gojsonschema.NewStringLoader(s)
	} else {
		docLoader = gojsonschema.NewGoLoader(doc)
	}

	result, err := compiled.Validate(docLoader)
	if err != nil {
		return fmt.Errorf("schema: validation failed to run: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("schema: %s", joinErrors(errs))
}

func (v *Validator) compile(schemaData any) (*gojsonschema.Schema, error) {
	jsonBytes, err := json.Marshal(schemaData)
	if err != nil {
		return nil, err
	}
	key := string(jsonBytes)

	if val, ok := v.cache.Load(key); ok {
		return val.(*gojsonschema.Schema), nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(jsonBytes))
	if err != nil {
		return nil, err
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	truncated := ""
	if len(errs) > 3 {
		truncated = fmt.Sprintf(" (and %d more)", len(errs)-3)
		errs = errs[:3]
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out + truncated
}
