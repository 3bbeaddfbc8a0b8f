package taskqueue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// PayloadTypes maps each task type to its payload struct.
var PayloadTypes = map[string]any{
	TaskTypeFanout:       FanoutPayload{},
	TaskTypeProcessScene: ScenePayload{},
}

// PayloadSchema reflects the JSON Schema of a task type's payload.
func PayloadSchema(taskType string) (*invopop.Schema, error) {
	t, ok := PayloadTypes[taskType]
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}
	r := &invopop.Reflector{DoNotReference: true}
	return r.Reflect(t), nil
}

// Validator checks task payloads against their schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the schema of every known task type.
func NewValidator() (*Validator, error) {
	types := make([]string, 0, len(PayloadTypes))
	for t := range PayloadTypes {
		types = append(types, t)
	}
	sort.Strings(types)

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(types))}
	for _, t := range types {
		s, err := PayloadSchema(t)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("marshal %s schema: %w", t, err)
		}
		url := t + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", t, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t, err)
		}
		v.schemas[t] = compiled
	}
	return v, nil
}

// Validate checks payload against the schema of taskType.
func (v *Validator) Validate(taskType string, payload []byte) error {
	s, ok := v.schemas[taskType]
	if !ok {
		return fmt.Errorf("unknown task type %q", taskType)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", taskType, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s payload does not match schema: %w", taskType, err)
	}
	return nil
}
