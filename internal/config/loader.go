package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EndpointSpec is one entry of the endpoint file before templating.
type EndpointSpec struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Variant     string `yaml:"variant"`
	ResponseKey string `yaml:"response_key,omitempty"`
	Database    string `yaml:"database,omitempty"`
	Collection  string `yaml:"collection,omitempty"`
}

type endpointFile struct {
	Endpoints []EndpointSpec `yaml:"endpoints"`
}

// LoadEndpoints reads and parses a YAML endpoint file.
func LoadEndpoints(filePath string) ([]EndpointSpec, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoint file '%s': %w", filePath, err)
	}
	return ParseEndpoints(bytes)
}

func ParseEndpoints(data []byte) ([]EndpointSpec, error) {
	var f endpointFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse endpoint file: %w", err)
	}
	if len(f.Endpoints) == 0 {
		return nil, fmt.Errorf("endpoint file defines no endpoints")
	}
	return f.Endpoints, nil
}
