package condor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the aggregate's file name inside the work directory.
const ProjectFile = "condor.yaml"

// ErrNoProject is returned by Load when the project file does not exist.
var ErrNoProject = errors.New("no project file")

// Save writes c to path atomically: a temporary file in the same directory
// is written, synced and renamed over path.
func Save(path string, c *Condor) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("save project: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save project: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// Load reads the aggregate saved at path.
func Load(path string) (*Condor, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoProject, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	var c Condor
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	return &c, nil
}

// Saver returns a save callback bound to path.
func Saver(path string) func(*Condor) error {
	return func(c *Condor) error { return Save(path, c) }
}
