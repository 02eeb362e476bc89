package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	schemaOnce sync.Once
	schema     *Schema
	schemaErr  error

	validate = validator.New(validator.WithRequiredStructEnabled())
)

func defaultSchema() (*Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = NewSchema()
	})
	return schema, schemaErr
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	return Parse(data, path)
}

// Parse validates data against the schema, decodes it and fills in defaults.
// An empty document yields Default().
func Parse(data []byte, source string) (*Config, error) {
	cfg := &Config{Source: source}
	if len(bytes.TrimSpace(data)) > 0 {
		s, err := defaultSchema()
		if err != nil {
			return nil, err
		}
		if err := s.Validate(data, source); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode configuration %s: %w", source, err)
		}
	}
	cfg.applyDefaults()

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			se := &SchemaError{}
			for _, fe := range verrs {
				se.Errors = append(se.Errors, ValidationError{
					File:    source,
					Path:    fe.Namespace(),
					Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
				})
			}
			return nil, se
		}
		return nil, fmt.Errorf("validate configuration %s: %w", source, err)
	}
	return cfg, nil
}
