package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsv "github.com/santhosh-tekuri/jsonschema/v6"
)

// Extractor provides strict JSON Schema generation and validated decoding for
// record type T. Build one per graph; it is immutable after construction and
// safe for concurrent use.
type Extractor[T any] struct {
	name      string
	schemaMap map[string]any
	compiled  *jsv.Schema
}

// NewExtractor creates an Extractor for type T. name identifies the schema
// when it is advertised to a model (tool name or response format name).
func NewExtractor[T any](name string) (*Extractor[T], error) {
	schemaMap, err := generate[T]()
	if err != nil {
		return nil, fmt.Errorf("schema generation for %s failed: %w", name, err)
	}

	compiled, err := compile(name, schemaMap)
	if err != nil {
		return nil, fmt.Errorf("schema compilation for %s failed: %w", name, err)
	}

	return &Extractor[T]{name: name, schemaMap: schemaMap, compiled: compiled}, nil
}

// Name returns the schema identifier advertised to models.
func (e *Extractor[T]) Name() string { return e.name }

// Definition returns the JSON Schema as a map suitable for tool parameter or
// response format declarations. Callers must not mutate nested maps.
func (e *Extractor[T]) Definition() map[string]any {
	out := make(map[string]any, len(e.schemaMap))
	for k, v := range e.schemaMap {
		out[k] = v
	}
	return out
}

// Decode validates raw JSON against the schema and unmarshals it into T.
// Missing fields, wrong types and unknown fields are all rejected; a
// partially filled record is never returned.
func (e *Extractor[T]) Decode(raw []byte) (T, error) {
	var zero T

	instance, err := jsv.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return zero, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := e.compiled.Validate(instance); err != nil {
		return zero, err
	}

	var record T
	if err := json.Unmarshal(raw, &record); err != nil {
		return zero, fmt.Errorf("decode into record failed: %w", err)
	}
	return record, nil
}

// DecodeMap validates already-parsed arguments (e.g. a tool call's argument
// map) and converts them into T.
func (e *Extractor[T]) DecodeMap(args map[string]any) (T, error) {
	var zero T
	raw, err := json.Marshal(args)
	if err != nil {
		return zero, err
	}
	return e.Decode(raw)
}

// compile builds a validator from the raw schema map.
func compile(name string, schemaMap map[string]any) (*jsv.Schema, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	doc, err := jsv.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	compiler := jsv.NewCompiler()
	url := name + ".schema.json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
