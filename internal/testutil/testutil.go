// Package testutil provides shared helpers for bootstrap tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempRepo creates a temporary directory that looks like a git repository
// root. Discovery only requires the .git entry to exist, so no git binary
// is needed.
func TempRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatalf("creating .git: %v", err)
	}
	return dir
}

// TempRepoWithFiles creates a temporary repository containing the given
// files, keyed by path relative to the repository root.
func TempRepoWithFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := TempRepo(t)
	for path, content := range files {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return dir
}

// WriteBootstrapConfig writes a bootstrap.yaml at the repository root.
func WriteBootstrapConfig(t *testing.T, repoRoot, yaml string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(repoRoot, "bootstrap.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

// Chdir switches the working directory for the duration of the test.
func Chdir(t *testing.T, dir string) {
	t.Helper()

	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
