// Package manifest locates Cargo manifests and resolves the relative
// source paths that appear in compiler diagnostics.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Resolver turns a possibly-relative source path from a diagnostic
// location line into the best absolute path available.
type Resolver interface {
	Resolve(file string) string
}

// DirResolver resolves paths against the working directory first, then
// against the manifest directory, keeping the input as-is when neither
// candidate exists.
type DirResolver struct {
	ManifestDir string
}

func (r DirResolver) Resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, file)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if r.ManifestDir != "" {
		candidate := filepath.Join(r.ManifestDir, file)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return file
}

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// Find walks upward from start looking for a directory containing
// Cargo.toml.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "Cargo.toml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no Cargo.toml found above %s", start)
		}
		dir = parent
	}
}

// PackageName reads the package name from the Cargo.toml in dir. A
// manifest without a [package] table (e.g. a workspace root) yields an
// empty name and no error.
func PackageName(dir string) (string, error) {
	var m cargoManifest
	if _, err := toml.DecodeFile(filepath.Join(dir, "Cargo.toml"), &m); err != nil {
		return "", fmt.Errorf("failed to parse Cargo.toml in %s: %w", dir, err)
	}
	return m.Package.Name, nil
}
