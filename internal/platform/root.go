package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/adapters/fs"
)

// ConfigFile is the file name that marks a catalog root.
const ConfigFile = "catalog.yaml"

// FindRoot looks upwards from startDir for a catalog root: a directory
// holding the fs adapter's system directory or a catalog.yaml file.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, fs.DefaultSystemDir) || hasFile(dir, ConfigFile) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("catalog root not found from %s", abs)
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
