package jsbind

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestNewModuleAccessors(t *testing.T) {
	m := NewModule("greeter.js", `export function greet() { return "hi"; }`)
	assert.Equal(t, "greeter.js", m.Filename())
	assert.Contains(t, m.Contents(), "greet")
}

func TestLoadModuleFileNotFound(t *testing.T) {
	_, err := LoadModuleFile(filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadModuleDirSkipsUnknownExtensions(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.js", `export const a = 1;`)
	writeTempFile(t, dir, "b.ts", `export const b: number = 2;`)
	writeTempFile(t, dir, "c.txt", `not a module`)

	modules, err := LoadModuleDir(dir)
	require.NoError(t, err)
	require.Len(t, modules, 2)

	names := []string{filepath.Base(modules[0].Filename()), filepath.Base(modules[1].Filename())}
	assert.ElementsMatch(t, []string{"a.js", "b.ts"}, names)
}

func TestLoadModuleDirNotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := writeTempFile(t, dir, "f.js", "")

	_, err := LoadModuleDir(file)
	assert.ErrorIs(t, err, ErrNotADirectory)

	_, err = LoadModuleDir(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadModuleAndCall(t *testing.T) {
	ctx := newEngineContext(t, Config{Timeout: time.Second})

	m := NewModule("math.js", `
		export function square(n) { return n * n; }
		export function describe() { return { kind: "math", ready: true }; }
	`)
	h, err := ctx.LoadModule(m)
	require.NoError(t, err)
	assert.Equal(t, "math.js", h.Filename())
	assert.Equal(t, m.Contents(), h.Contents())

	v, err := ctx.CallModule(h, "square", 9)
	require.NoError(t, err)
	assert.Equal(t, float64(81), v)

	v, err = ctx.CallModule(h, "describe")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"kind": "math", "ready": true}, v)
}

func TestLoadModuleTypeScript(t *testing.T) {
	ctx := newEngineContext(t, Config{Timeout: time.Second})

	m := NewModule("typed.ts", `export function triple(n: number): number { return n * 3; }`)
	h, err := ctx.LoadModule(m)
	require.NoError(t, err)

	v, err := ctx.CallModule(h, "triple", 4)
	require.NoError(t, err)
	assert.Equal(t, float64(12), v)
}

func TestLoadModuleAsyncCall(t *testing.T) {
	ctx := newEngineContext(t, Config{Timeout: time.Second})

	m := NewModule("async.js", `export async function fetchValue() { return "ready"; }`)
	h, err := ctx.LoadModule(m)
	require.NoError(t, err)

	p, err := ctx.CallModuleAsync(h, "fetchValue")
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for {
		done, err := p.Step(ctx)
		require.NoError(t, err)
		if done {
			break
		}
		_, err = ctx.Advance(nil)
		require.NoError(t, err)
		require.True(t, time.Now().Before(deadline), "promise never settled")
	}

	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestLoadModuleWithLocalImport(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "helper.js", `export const base = 10;`)
	main := writeTempFile(t, dir, "main.js", `
		import { base } from "./helper.js";
		export function total(n) { return base + n; }
	`)

	ctx := newEngineContext(t, Config{Timeout: time.Second, WorkDir: dir})

	m, err := LoadModuleFile(main)
	require.NoError(t, err)
	h, err := ctx.LoadModule(m)
	require.NoError(t, err)

	v, err := ctx.CallModule(h, "total", 5)
	require.NoError(t, err)
	assert.Equal(t, float64(15), v)
}

func TestLoadModulesSideThenMain(t *testing.T) {
	ctx := newEngineContext(t, Config{Timeout: time.Second})

	side := NewModule("side.js", `globalThis.sideLoaded = true; export const marker = 1;`)
	main := NewModule("main.js", `export function check() { return globalThis.sideLoaded === true; }`)

	h, err := ctx.LoadModules(main, side)
	require.NoError(t, err)

	v, err := ctx.CallModule(h, "check")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestLoadModuleSyntaxError(t *testing.T) {
	ctx := newEngineContext(t, Config{Timeout: time.Second})

	_, err := ctx.LoadModule(NewModule("broken.js", `export function {`))
	assert.Error(t, err)
}

func TestLoadModuleUsesBuildCache(t *testing.T) {
	ctx := newEngineContext(t, Config{Timeout: time.Second})

	m := NewModule("cached.js", `export function one() { return 1; }`)
	_, err := ctx.LoadModule(m)
	require.NoError(t, err)

	sourcePath, _ := filepath.Abs("cached.js")
	build, found, err := ctx.cache.GetBuild(sourcePath)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEmpty(t, build.JS)

	// Loading again with identical contents reuses the cached bundle.
	h, err := ctx.LoadModule(m)
	require.NoError(t, err)
	v, err := ctx.CallModule(h, "one")
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)
}

func TestModuleGlobalNameStable(t *testing.T) {
	a := moduleGlobalName("app/mod.js")
	b := moduleGlobalName("app/mod.js")
	c := moduleGlobalName("app/other.js")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
