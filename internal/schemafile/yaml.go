package schemafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Models []Definition `yaml:"models"`
}

// ParseYAML decodes model definitions. Unknown keys are rejected.
func ParseYAML(src []byte) ([]Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var f yamlFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Path: "models", Message: "no models defined"}
		}
		return nil, fmt.Errorf("parsing schema yaml: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, &Error{Path: "models", Message: "no models defined"}
	}
	for i, d := range f.Models {
		if d.Name == "" {
			return nil, &Error{Path: fmt.Sprintf("models[%d].name", i), Message: "name is required"}
		}
	}
	return f.Models, nil
}
