package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// DefaultPattern matches every YAML file below the registry directory.
const DefaultPattern = "**/*.{yaml,yml}"

// fileDoc is the on-disk layout of a context definition file.
//
//	contexts:
//	  - id: renderdata
//	    displayName: Render Data
//	    requiredMetadata: [documentcode]
//	    optionalMetadata: [productcode]
//	    active: true
type fileDoc struct {
	Contexts []fileContext `yaml:"contexts"`
}

type fileContext struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"displayName"`
	Description string   `yaml:"description"`
	Required    []string `yaml:"requiredMetadata"`
	Optional    []string `yaml:"optionalMetadata"`
	Active      *bool    `yaml:"active"`
}

func (f fileContext) toContext() core.Context {
	active := true
	if f.Active != nil {
		active = *f.Active
	}
	return core.Context{
		ID:                   f.ID,
		DisplayName:          f.DisplayName,
		Description:          f.Description,
		RequiredMetadataKeys: f.Required,
		OptionalMetadataKeys: f.Optional,
		Active:               active,
	}.Normalize()
}

// LoadDir reads every file under dir matching pattern and returns the
// contexts they define, sorted by id. Files are visited in lexical order.
func LoadDir(dir, pattern string) ([]core.Context, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid registry pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan registry dir %s: %w", dir, err)
	}
	sort.Strings(matches)

	var out []core.Context
	for _, rel := range matches {
		contexts, err := LoadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		out = append(out, contexts...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadFile parses one context definition file.
func LoadFile(path string) ([]core.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("registry file %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}

	out := make([]core.Context, 0, len(doc.Contexts))
	for _, fc := range doc.Contexts {
		out = append(out, fc.toContext())
	}
	return out, nil
}

// Load builds a Static registry from the definitions found under dir.
func Load(dir, pattern string) (*Static, error) {
	contexts, err := LoadDir(dir, pattern)
	if err != nil {
		return nil, err
	}
	r, err := NewStatic()
	if err != nil {
		return nil, err
	}
	if err := r.Replace(contexts); err != nil {
		return nil, err
	}
	return r, nil
}
