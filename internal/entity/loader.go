// Package entity loads YAML entity definitions, validates them structurally
// and referentially, and provides a fast-lookup registry with atomic pointer
// swap.
package entity

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pitabwire/formbridge/model"
	"gopkg.in/yaml.v3"
)

// Loader scans directories for YAML entity definition files, parses them,
// and computes SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new entity Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and
// parses each into an EntityDefinition.
func (l *Loader) LoadAll(directories []string) ([]model.EntityDefinition, error) {
	var defs []model.EntityDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (model.EntityDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.EntityDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var def model.EntityDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.EntityDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(data))
	def.Checksum = checksum
	def.SourceFile = path

	return def, nil
}
