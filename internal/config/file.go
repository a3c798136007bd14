package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// experimentFile is the layout of the CONFIG_FILE document.
type experimentFile struct {
	Experiment Experiment `yaml:"experiment"`
}

// LoadExperimentFile reads the experiment block of a YAML file, expanding
// ${VAR} references first. Keys absent from the file keep their value from
// base.
func LoadExperimentFile(path string, base Experiment) (Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Experiment{}, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	doc := experimentFile{Experiment: base}
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return Experiment{}, fmt.Errorf("parse config yaml: %w", err)
	}
	return doc.Experiment, nil
}
