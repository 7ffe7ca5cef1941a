// Package transpile turns ES module sources into plain scripts the engine
// can evaluate. Each module is bundled into an IIFE whose exports land on
// a dedicated global, so exported functions stay reachable by name.
package transpile

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// BuildResult is the bundled form of one module.
type BuildResult struct {
	// GlobalName is the global object holding the module's exports.
	GlobalName string
	// JS is the bundled script.
	JS string
	// Dependencies lists every input file that went into the bundle,
	// used for cache invalidation when a file changes.
	Dependencies []string
	// SourceHash fingerprints the source contents so cached bundles are
	// only reused for identical input.
	SourceHash string
}

// Build bundles a module given as in-memory contents. resolveDir anchors
// relative imports; globalName receives the exports object.
func Build(filename, contents, resolveDir, globalName string) (BuildResult, error) {
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   contents,
			Sourcefile: filename,
			ResolveDir: resolveDir,
			Loader:     loaderForFile(filename),
		},
		Bundle:            true,
		Write:             false,
		Format:            api.FormatIIFE,
		GlobalName:        globalName,
		Platform:          api.PlatformNeutral,
		Target:            api.ES2020,
		Metafile:          true,
		MinifyWhitespace:  false,
		MinifyIdentifiers: false,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return BuildResult{}, fmt.Errorf("building %s: %s", filename, formatMessages(result.Errors))
	}
	if len(result.OutputFiles) == 0 {
		return BuildResult{}, fmt.Errorf("building %s: no output produced", filename)
	}
	deps, err := dependenciesFromMetafile(result.Metafile)
	if err != nil {
		return BuildResult{}, err
	}
	return BuildResult{
		GlobalName:   globalName,
		JS:           string(result.OutputFiles[0].Contents),
		Dependencies: deps,
	}, nil
}

func loaderForFile(filename string) api.Loader {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	case ".mjs":
		return api.LoaderJS
	default:
		return api.LoaderJS
	}
}

// dependenciesFromMetafile extracts the bundle's input file paths.
func dependenciesFromMetafile(metafile string) ([]string, error) {
	var meta struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil, fmt.Errorf("parsing build metafile: %w", err)
	}
	deps := make([]string, 0, len(meta.Inputs))
	for input := range meta.Inputs {
		// Stdin shows up as the synthetic source name; only real files
		// matter for invalidation.
		if strings.HasPrefix(input, "<stdin>") {
			continue
		}
		abs, err := filepath.Abs(input)
		if err != nil {
			abs = input
		}
		deps = append(deps, abs)
	}
	return deps, nil
}

func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d: %s", msg.Location.File, msg.Location.Line, msg.Text))
		} else {
			parts = append(parts, msg.Text)
		}
	}
	return strings.Join(parts, "; ")
}
