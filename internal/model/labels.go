package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

// LabelTable maps a model output index to a human-readable class description.
type LabelTable []string

// Lookup returns the label at index, or ErrIndexOutOfRange.
func (t LabelTable) Lookup(index int) (string, error) {
	if index < 0 || index >= len(t) {
		return "", fmt.Errorf("%w: index %d, table has %d labels", ErrIndexOutOfRange, index, len(t))
	}
	return t[index], nil
}

// Validate checks the table is non-empty and, when width is positive, that it
// has exactly one entry per model output.
func (t LabelTable) Validate(width int) error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no classes", ErrLabelTable)
	}
	for i, label := range t {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("%w: class %d has an empty label", ErrLabelTable, i)
		}
	}
	if width > 0 && width != len(t) {
		return fmt.Errorf("%w: model outputs %d scores but table has %d labels", ErrLabelTable, width, len(t))
	}
	return nil
}

// LoadMetadata reads a YAML or JSON metadata file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read metadata: %v", ErrLabelTable, err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: failed to parse metadata %s: %v", ErrLabelTable, path, err)
	}
	return &meta, nil
}

// LoadLabelTable reads the classes list of a metadata file and checks it is usable.
func LoadLabelTable(path string) (LabelTable, error) {
	meta, err := LoadMetadata(path)
	if err != nil {
		return nil, err
	}
	table := LabelTable(meta.Classes)
	if err := table.Validate(0); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// MetadataPath finds the metadata file belonging to a checkpoint. It looks
// for <stem>_metadata.yaml, .yml or .json beside the checkpoint, then for
// model_metadata.json in the same directory.
func MetadataPath(checkpointPath string) (string, error) {
	dir := filepath.Dir(checkpointPath)
	stem := strings.TrimSuffix(filepath.Base(checkpointPath), filepath.Ext(checkpointPath))

	candidates := []string{
		filepath.Join(dir, stem+"_metadata.yaml"),
		filepath.Join(dir, stem+"_metadata.yml"),
		filepath.Join(dir, stem+"_metadata.json"),
		filepath.Join(dir, "model_metadata.json"),
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: no metadata file for %s (tried %s)", ErrLabelTable, checkpointPath,
		strings.Join(candidates, ", "))
}
