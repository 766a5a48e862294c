// Package schema derives strict JSON Schemas from Go record types and
// validates model output against them. It backs both finalization
// strategies: the generated schema is advertised to the model (as a disguised
// tool or as a constrained response format) and the returned JSON is only
// accepted if it conforms.
package schema

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
)

// generate produces a strict JSON Schema map for type T: every object has
// additionalProperties: false and all declared properties required, so a
// conforming instance is never partially filled.
func generate[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, err
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, err
	}

	enrichFromStructTags(schemaMap, reflect.TypeOf(new(T)))
	applyStrictMode(schemaMap)
	stripSchemaIDs(schemaMap)

	return schemaMap, nil
}

// enrichFromStructTags adds descriptions from `description` struct tags to
// root-level properties. The json tag (first part before comma) is used to
// match property keys.
func enrichFromStructTags(schemaMap map[string]any, typ reflect.Type) {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return
	}
	props, ok := schemaMap["properties"].(map[string]any)
	if !ok {
		return
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
	}
}

// walkSchema recursively visits every map node in the schema tree.
func walkSchema(schemaMap map[string]any, visit func(map[string]any)) {
	if schemaMap == nil {
		return
	}
	visit(schemaMap)
	for _, val := range schemaMap {
		switch v := val.(type) {
		case map[string]any:
			walkSchema(v, visit)
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					walkSchema(m, visit)
				}
			}
		}
	}
}

// applyStrictMode sets additionalProperties: false and requires every
// property for all objects in the schema.
func applyStrictMode(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		props, isObj := n["properties"].(map[string]any)
		if !isObj {
			return
		}
		n["additionalProperties"] = false
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		if len(keys) > 0 {
			required := make([]any, len(keys))
			for i, k := range keys {
				required[i] = k
			}
			n["required"] = required
		}
	})
}

// stripSchemaIDs removes $schema, id and $id so resolution does not depend on them.
func stripSchemaIDs(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		delete(n, "$schema")
		delete(n, "id")
		delete(n, "$id")
	})
}
