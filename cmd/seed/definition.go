package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"prompt-chaining/backend/pkg/models"
)

// definitionFile mirrors the import format of the web editor.
type definitionFile struct {
	Nodes []models.WorkflowNode `json:"nodes" yaml:"nodes"`
}

// loadDefinition reads a workflow definition from a JSON or YAML file.
func loadDefinition(path string) ([]models.WorkflowNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var def definitionFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&def)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&def)
	default:
		return nil, fmt.Errorf("unsupported definition format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if def.Nodes == nil {
		return nil, fmt.Errorf("%s: nodes must be a list", path)
	}
	return def.Nodes, nil
}
