package cds

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and parses a model from a JSON file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	model, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}
	return model, nil
}

// Parse decodes a model from its JSON representation and back-fills the
// qualified name on every definition and bound action.
func Parse(data []byte) (*Model, error) {
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("invalid model JSON: %w", err)
	}
	if model.Definitions == nil {
		return nil, fmt.Errorf("model has no definitions")
	}

	for name, def := range model.Definitions {
		def.Name = name
		for actionName, action := range def.Actions {
			action.Name = name + "." + actionName
		}
	}

	return &model, nil
}
