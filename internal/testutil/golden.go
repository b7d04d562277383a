package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GoldenHelper compares generated output with golden files under a
// directory. Setting UPDATE_GOLDEN=true rewrites the golden files instead.
type GoldenHelper struct {
	t          *testing.T
	goldenDir  string
	updateMode bool
}

// NewGoldenHelper creates a new golden file helper.
func NewGoldenHelper(t *testing.T, goldenDir string) *GoldenHelper {
	t.Helper()

	return &GoldenHelper{
		t:          t,
		goldenDir:  goldenDir,
		updateMode: os.Getenv("UPDATE_GOLDEN") == "true",
	}
}

// GoldenPath returns the full path to a golden file.
func (g *GoldenHelper) GoldenPath(name string) string {
	return filepath.Join(g.goldenDir, name)
}

// update writes actual as the new golden file and reports whether it did.
func (g *GoldenHelper) update(name string, actual []byte) bool {
	g.t.Helper()
	if !g.updateMode {
		return false
	}

	goldenPath := g.GoldenPath(name)
	require.NoError(g.t, os.MkdirAll(filepath.Dir(goldenPath), 0o755), "failed to create golden file directory")
	require.NoError(g.t, os.WriteFile(goldenPath, actual, 0o644), "failed to update golden file")
	g.t.Logf("Updated golden file: %s", goldenPath)
	return true
}

// AssertGolden compares actual byte for byte with the golden file.
func (g *GoldenHelper) AssertGolden(name string, actual []byte) {
	g.t.Helper()
	if g.update(name, actual) {
		return
	}

	golden, err := os.ReadFile(g.GoldenPath(name))
	require.NoError(g.t, err, "failed to read golden file %s", name)
	assert.Equal(g.t, string(golden), string(actual), "content does not match golden file %s", name)
}

// AssertGoldenJSON compares JSON content, ignoring formatting differences.
func (g *GoldenHelper) AssertGoldenJSON(name string, actual []byte) {
	g.t.Helper()
	if g.update(name, actual) {
		return
	}

	golden, err := os.ReadFile(g.GoldenPath(name))
	require.NoError(g.t, err, "failed to read golden file %s", name)
	assert.JSONEq(g.t, string(golden), string(actual), "JSON content does not match golden file %s", name)
}
