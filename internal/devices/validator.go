package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenRigCore/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/io-profile-v1.json
var ioProfileSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("io-profile-v1.json",
		strings.NewReader(ioProfileSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("io-profile-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateProfile validates a profile given as JSON.
func (v *Validator) ValidateProfile(data []byte) error {
	var profile interface{}
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(profile); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidateYAML validates a profile given as YAML. The document is converted
// to JSON first so the schema sees the same value types either way.
func (v *Validator) ValidateYAML(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("profile is not representable as JSON: %w", err)
	}

	return v.ValidateProfile(asJSON)
}

// CheckReferences verifies what the schema cannot: unique channel names and
// gang or simulation references to existing channels.
func CheckReferences(p *types.IOProfile) error {
	seen := make(map[string]string)
	add := func(name, kind string) error {
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("channel %q defined as %s and %s", name, prev, kind)
		}
		seen[name] = kind
		return nil
	}
	coils := make(map[uint16]string)
	for _, o := range p.Outputs {
		if err := add(o.Name, "output"); err != nil {
			return err
		}
		if prev, ok := coils[o.Coil]; ok {
			return fmt.Errorf("coil %d used by %q and %q", o.Coil, prev, o.Name)
		}
		coils[o.Coil] = o.Name
	}
	for _, i := range p.Inputs {
		if err := add(i.Name, "input"); err != nil {
			return err
		}
	}
	for _, a := range p.Analog {
		if err := add(a.Name, "analog"); err != nil {
			return err
		}
	}
	for _, g := range p.Gangs {
		if err := add(g.Name, "gang"); err != nil {
			return err
		}
		for _, m := range g.Members {
			if seen[m] != "output" {
				return fmt.Errorf("gang %q: member %q is not an output", g.Name, m)
			}
		}
	}
	for _, r := range p.Simulation {
		if k := seen[r.Input]; k != "input" && k != "analog" {
			return fmt.Errorf("simulation: %q is not an input", r.Input)
		}
		if r.Follows != "" {
			if k := seen[r.Follows]; k != "output" && k != "gang" {
				return fmt.Errorf("simulation: %q follows %q which is not an output", r.Input, r.Follows)
			}
		}
	}
	return nil
}
