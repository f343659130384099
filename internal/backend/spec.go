// Package backend talks to the record-owning services: listing and fetching
// records, submitting serialized payloads, and checking entity paths against
// service OpenAPI specifications at startup.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// SpecSource describes an OpenAPI spec file to load.
type SpecSource struct {
	ServiceID string
	SpecPath  string
}

// SpecIndex is an in-memory index of the paths each backend service exposes,
// built from its OpenAPI specification. Startup uses it to reject entity
// definitions bound to paths the service does not serve.
type SpecIndex struct {
	// key: "serviceID method pathTemplate"
	paths    map[string]bool
	services map[string]bool
}

// NewSpecIndex creates an empty SpecIndex.
func NewSpecIndex() *SpecIndex {
	return &SpecIndex{
		paths:    make(map[string]bool),
		services: make(map[string]bool),
	}
}

func pathKey(serviceID, method, path string) string {
	return serviceID + " " + strings.ToUpper(method) + " " + path
}

// Load parses and validates OpenAPI specs from the given sources and indexes
// every path/method pair.
func (idx *SpecIndex) Load(specs []SpecSource) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	for _, src := range specs {
		doc, err := loader.LoadFromFile(src.SpecPath)
		if err != nil {
			return fmt.Errorf("openapi: loading %s (%s): %w", src.ServiceID, src.SpecPath, err)
		}

		if err := doc.Validate(context.Background()); err != nil {
			return fmt.Errorf("openapi: validating %s: %w", src.ServiceID, err)
		}

		idx.services[src.ServiceID] = true
		for path, pathItem := range doc.Paths.Map() {
			for method := range pathItem.Operations() {
				idx.paths[pathKey(src.ServiceID, method, path)] = true
			}
		}
	}

	return nil
}

// HasPath reports whether the service exposes the method/path pair. Services
// without a loaded spec pass unconditionally; the check only binds where a
// spec was provided.
func (idx *SpecIndex) HasPath(serviceID, method, path string) bool {
	if !idx.services[serviceID] {
		return true
	}
	return idx.paths[pathKey(serviceID, method, path)]
}

// HasService reports whether a spec was loaded for the service.
func (idx *SpecIndex) HasService(serviceID string) bool {
	return idx.services[serviceID]
}
