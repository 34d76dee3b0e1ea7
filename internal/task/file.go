package task

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads a YAML (or JSON, which is valid YAML) task definition and
// validates it.
func Decode(r io.Reader) (*Task, error) {
	var t Task
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("task: decode: %w", err)
	}
	if t.Type == "" {
		t.Type = TypeParallel
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads and decodes the task definition at path.
func Load(path string) (*Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("task: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}
