// Package schema validates JSON documents against the embedded lesson schemas.
package schema

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names.
const (
	LessonStub = "lesson_stub"
	Lesson     = "lesson"
)

// compiled caches compiled schemas by name.
var compiled sync.Map // map[string]*jsonschema.Schema

// ValidationError reports a document that does not match its schema.
type ValidationError struct {
	Schema string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s schema validation failed: %v", e.Schema, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks raw JSON against the named schema.
func Validate(name string, raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Schema: name, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return ValidateValue(name, doc)
}

// ValidateValue checks an already decoded JSON value against the named schema.
func ValidateValue(name string, doc any) error {
	sch, err := get(name)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return &ValidationError{Schema: name, Err: err}
	}
	return nil
}

func get(name string) (*jsonschema.Schema, error) {
	if cached, ok := compiled.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	f, err := schemaFS.Open("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("open schema %q: %w", name, err)
	}
	defer f.Close()
	def, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}

	compiled.Store(name, sch)
	return sch, nil
}
