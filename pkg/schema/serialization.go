package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML parses a YAML document and validates it.
func LoadYAML(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadJSON parses a JSON document and validates it.
func LoadJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads a document from disk, choosing the format by file
// extension: .json for JSON, anything else for YAML.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(data)
	}
	return LoadYAML(data)
}

// MarshalYAML renders the document as YAML.
func MarshalYAML(doc *Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

// MarshalJSON renders the document as indented JSON.
func MarshalJSON(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// SaveFile writes the document to disk, choosing the format by file
// extension the same way LoadFile does.
func SaveFile(path string, doc *Document) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = MarshalJSON(doc)
	} else {
		data, err = MarshalYAML(doc)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
