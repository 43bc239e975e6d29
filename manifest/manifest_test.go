package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(body), 0o644))
}

func TestFind_WalksUpward(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[package]\nname = \"demo\"\n")

	nested := filepath.Join(root, "src", "bin")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	dir, err := Find(nested)
	require.NoError(t, err)
	require.Equal(t, root, dir)
}

func TestFind_NoManifest(t *testing.T) {
	_, err := Find(t.TempDir())
	require.Error(t, err)
}

func TestPackageName(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[package]\nname = \"demo\"\nversion = \"0.1.0\"\n")

	name, err := PackageName(dir)
	require.NoError(t, err)
	require.Equal(t, "demo", name)
}

func TestPackageName_WorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[workspace]\nmembers = [\"crates/*\"]\n")

	name, err := PackageName(dir)
	require.NoError(t, err)
	require.Empty(t, name)
}

func TestDirResolver(t *testing.T) {
	manifestDir := t.TempDir()
	srcDir := filepath.Join(manifestDir, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	existing := filepath.Join(srcDir, "main.rs")
	require.NoError(t, os.WriteFile(existing, []byte("fn main() {}\n"), 0o644))

	r := DirResolver{ManifestDir: manifestDir}

	// Absolute paths pass through untouched.
	require.Equal(t, existing, r.Resolve(existing))

	// Relative paths resolve against the manifest dir when the file
	// exists there but not under the working directory.
	require.Equal(t, existing, r.Resolve(filepath.Join("src", "main.rs")))

	// Paths that exist nowhere stay as given.
	require.Equal(t, "src/other.rs", r.Resolve("src/other.rs"))
}
