package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"kasbon/pkg/yamljson"
)

// ReadFile decodes the config at path.
func ReadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(path, b)
}

// Decode strictly decodes data (YAML when name ends in .yaml or .yml, JSON
// otherwise) and overlays KASBON_* secrets. Unknown keys and trailing
// documents are errors.
func Decode(name string, data []byte) (*Config, error) {
	jb, err := yamljson.ConvertFile(name, data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()

	cfg := new(Config)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
	case err == nil:
		return nil, fmt.Errorf("%s: trailing data after config", name)
	default:
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	applyEnv(cfg)
	return cfg, nil
}
