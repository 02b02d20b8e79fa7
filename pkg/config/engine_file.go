package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ecoproof/ecoproof/pkg/admission"
	"github.com/ecoproof/ecoproof/pkg/contracts"
)

//go:embed engine.schema.json
var engineSchemaJSON string

const engineSchemaURL = "https://ecoproof.schemas.local/engine.schema.json"

var compileEngineSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(engineSchemaURL, strings.NewReader(engineSchemaJSON)); err != nil {
		return nil, fmt.Errorf("engine schema load failed: %w", err)
	}
	s, err := c.Compile(engineSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("engine schema compile failed: %w", err)
	}
	return s, nil
})

// EngineFile is the genesis document for a fresh engine: initial parameters,
// role members and the admission policy.
type EngineFile struct {
	Admin     string           `yaml:"admin" json:"admin,omitempty"`
	Verifiers []string         `yaml:"verifiers" json:"verifiers,omitempty"`
	Oracles   []string         `yaml:"oracles" json:"oracles,omitempty"`
	Params    contracts.Params `yaml:"params" json:"params"`
	Admission []admission.Rule `yaml:"admission" json:"admission,omitempty"`
}

// LoadEngineParams reads and validates an engine file. An empty path yields
// the default parameters.
func LoadEngineParams(path string) (*EngineFile, error) {
	if path == "" {
		return &EngineFile{Params: contracts.DefaultParams()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load engine file: %w", err)
	}
	f, err := ParseEngineParams(data)
	if err != nil {
		return nil, fmt.Errorf("engine file %s: %w", path, err)
	}
	return f, nil
}

// ParseEngineParams validates a YAML engine document against the embedded
// schema and decodes it. Params not present in the document keep their
// defaults.
func ParseEngineParams(data []byte) (*EngineFile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	// The schema validator expects JSON-shaped values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}

	schema, err := compileEngineSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	f := EngineFile{Params: contracts.DefaultParams()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode engine file: %w", err)
	}
	if err := f.Params.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Policy compiles the admission rules. It returns nil when there are none.
func (f *EngineFile) Policy() (*admission.Policy, error) {
	if len(f.Admission) == 0 {
		return nil, nil
	}
	return admission.NewPolicy(f.Admission)
}
