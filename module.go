package jsbind

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yejune/jsbind/internal/transpile"
	"github.com/yejune/jsbind/internal/utils"
)

// moduleExtensions are the source kinds LoadModuleDir picks up. Anything
// else in the directory is skipped silently.
var moduleExtensions = []string{".js", ".ts", ".mjs", ".jsx", ".tsx"}

// Module is an unloaded unit of JavaScript or TypeScript source.
type Module struct {
	filename string
	contents string
}

// NewModule creates a module from in-memory source. The filename names
// the module in errors and anchors relative imports.
func NewModule(filename, contents string) *Module {
	return &Module{filename: filename, contents: contents}
}

// LoadModuleFile reads a module from disk. A missing file surfaces as an
// error wrapping fs.ErrNotExist.
func LoadModuleFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading module: %w", err)
	}
	return &Module{filename: path, contents: string(data)}, nil
}

// LoadModuleDir reads every module source in a directory, skipping files
// whose extension is not a recognized module kind.
func LoadModuleDir(dir string) ([]*Module, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("loading module dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotADirectory)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading module dir: %w", err)
	}
	var modules []*Module
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !isModuleFile(entry.Name()) {
			continue
		}
		m, err := LoadModuleFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func isModuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range moduleExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// Filename returns the module's source name.
func (m *Module) Filename() string {
	return m.filename
}

// Contents returns the module's source text.
func (m *Module) Contents() string {
	return m.contents
}

// ModuleHandle is a module that has been loaded into a context. Exported
// functions are called through CallModule and CallModuleAsync.
type ModuleHandle struct {
	filename   string
	contents   string
	globalName string
}

// Filename returns the loaded module's source name.
func (h *ModuleHandle) Filename() string {
	return h.filename
}

// Contents returns the loaded module's source text.
func (h *ModuleHandle) Contents() string {
	return h.contents
}

// LoadModule bundles a module and evaluates it in the context. The
// returned handle stays valid until the context is closed or reset.
func (c *Context) LoadModule(m *Module) (*ModuleHandle, error) {
	build, err := c.buildModule(m)
	if err != nil {
		return nil, err
	}
	err = c.cell.With(func(st *engineState) error {
		return st.eng.LoadScript(m.filename, build.JS)
	})
	if err != nil {
		return nil, err
	}
	return &ModuleHandle{
		filename:   m.filename,
		contents:   m.contents,
		globalName: build.GlobalName,
	}, nil
}

// LoadModules loads side modules first and then the main module,
// returning the main module's handle. Side modules are loaded for their
// globals; the main module may depend on them being evaluated.
func (c *Context) LoadModules(main *Module, side ...*Module) (*ModuleHandle, error) {
	for _, m := range side {
		if _, err := c.LoadModule(m); err != nil {
			return nil, err
		}
	}
	return c.LoadModule(main)
}

// buildModule bundles a module's source, going through the build cache.
// Cached bundles are reused only when the source hash still matches.
func (c *Context) buildModule(m *Module) (transpile.BuildResult, error) {
	sourcePath := utils.GetFullFilePath(m.filename)
	hash := contentHash(m.contents)

	if build, found, err := c.cache.GetBuild(sourcePath); err == nil && found && build.SourceHash == hash {
		return build, nil
	} else if err != nil {
		c.logger.Error("Failed to get build from cache", "error", err, "module", m.filename)
	}

	globalName := moduleGlobalName(m.filename)
	build, err := transpile.Build(m.filename, m.contents, c.WorkDir(), globalName)
	if err != nil {
		return transpile.BuildResult{}, err
	}
	build.SourceHash = hash

	if err := c.cache.SetBuild(sourcePath, build); err != nil {
		c.logger.Error("Failed to update build cache", "error", err, "module", m.filename)
	}
	// Map the module and its bundle inputs so the cache can be
	// invalidated when any of them changes.
	if err := c.cache.SetSourceFile(globalName, sourcePath); err != nil {
		c.logger.Error("Failed to set source file", "error", err, "module", m.filename)
	}
	if err := c.cache.SetModuleDependencies(sourcePath, build.Dependencies); err != nil {
		c.logger.Error("Failed to set module dependencies", "error", err, "module", m.filename)
	}
	return build, nil
}

// moduleGlobalName creates a stable global name from a module filename
func moduleGlobalName(filename string) string {
	hash := sha256.Sum256([]byte(filename))
	return "__jsbind_m_" + hex.EncodeToString(hash[:8]) // 16 char hex string
}

func contentHash(contents string) string {
	hash := sha256.Sum256([]byte(contents))
	return hex.EncodeToString(hash[:])
}
