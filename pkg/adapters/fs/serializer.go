package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// fileVersion is bumped when the record file layout changes.
const fileVersion = 1

// RecordFile is the on-disk layout of one context's aggregate records.
type RecordFile struct {
	Version   int                    `json:"version" yaml:"version"`
	ContextID string                 `json:"contextId" yaml:"contextId"`
	Records   []core.AggregateRecord `json:"records" yaml:"records"`
}

// Serializer defines how to read and write a specific file format.
type Serializer interface {
	// Decode reads a record file from r.
	Decode(r io.Reader) (*RecordFile, error)
	// Encode converts a record file to bytes.
	Encode(f RecordFile) ([]byte, error)
}

// DefaultSerializers returns the supported formats keyed by file extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".json": JSONSerializer{},
		".yaml": YAMLSerializer{},
		".yml":  YAMLSerializer{},
	}
}

// --- JSON Serializer ---

// JSONSerializer handles reading and writing JSON record files.
type JSONSerializer struct{}

func (JSONSerializer) Decode(r io.Reader) (*RecordFile, error) {
	var f RecordFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return &f, nil
}

func (JSONSerializer) Encode(f RecordFile) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- YAML Serializer ---

// YAMLSerializer handles reading and writing YAML record files.
type YAMLSerializer struct{}

func (YAMLSerializer) Decode(r io.Reader) (*RecordFile, error) {
	var f RecordFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return &f, nil
}

func (YAMLSerializer) Encode(f RecordFile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
