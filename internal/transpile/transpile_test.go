package transpile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExportsOnGlobal(t *testing.T) {
	result, err := Build("mod.js", `export function greet(name) { return "hi " + name; }`, t.TempDir(), "__mod_test")
	require.NoError(t, err)
	assert.Equal(t, "__mod_test", result.GlobalName)
	assert.Contains(t, result.JS, "__mod_test")
	assert.Contains(t, result.JS, "greet")
}

func TestBuildTypeScript(t *testing.T) {
	src := `export function double(n: number): number { return n * 2; }`
	result, err := Build("mod.ts", src, t.TempDir(), "__ts_test")
	require.NoError(t, err)
	assert.Contains(t, result.JS, "double")
	// Type annotations must be stripped.
	assert.NotContains(t, result.JS, ": number")
}

func TestBuildTracksDependencies(t *testing.T) {
	dir := t.TempDir()
	helper := filepath.Join(dir, "helper.js")
	require.NoError(t, os.WriteFile(helper, []byte(`export const answer = 42;`), 0644))

	result, err := Build("main.js", `import { answer } from "./helper.js"; export function get() { return answer; }`, dir, "__dep_test")
	require.NoError(t, err)

	found := false
	for _, dep := range result.Dependencies {
		if filepath.Base(dep) == "helper.js" {
			found = true
		}
	}
	assert.True(t, found, "bundle inputs should include helper.js, got %v", result.Dependencies)
}

func TestBuildSyntaxError(t *testing.T) {
	_, err := Build("bad.js", `export function {`, t.TempDir(), "__bad_test")
	assert.Error(t, err)
}
