package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includeWalker overlays included files onto a Config, depth-first, in the
// order they are listed. Every absolute path is visited at most once.
type includeWalker struct {
	cfg     *Config
	visited map[string]bool
}

// processIncludes merges the files named by cfg.Includes (globs allowed,
// relative to baseDir) into cfg.
func processIncludes(cfg *Config, baseDir string, visited map[string]bool, depth int) error {
	if visited == nil {
		visited = make(map[string]bool)
	}
	w := &includeWalker{cfg: cfg, visited: visited}
	return w.walk(cfg.Includes, baseDir, depth)
}

func (w *includeWalker) walk(patterns []string, baseDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := expandInclude(pattern, baseDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("config includes: abs path %q: %w", p, err)
			}
			if w.visited[abs] {
				return fmt.Errorf("config includes: circular include detected for %q", abs)
			}
			w.visited[abs] = true

			nested, err := w.overlay(abs)
			if err != nil {
				return err
			}
			if err := w.walk(nested, filepath.Dir(abs), depth+1); err != nil {
				return err
			}
		}
	}
	w.cfg.Includes = nil
	return nil
}

// overlay unmarshals one file onto the config and returns its own includes.
func (w *includeWalker) overlay(path string) ([]string, error) {
	if err := validatePermissions(path); err != nil {
		return nil, fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	w.cfg.Includes = nil
	if err := yaml.Unmarshal(data, w.cfg); err != nil {
		return nil, fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	nested := w.cfg.Includes
	w.cfg.Includes = nil
	return nested, nil
}

// expandInclude resolves a pattern relative to baseDir, refusing paths that
// climb out of it. A literal path that does not exist is returned as-is so the
// read reports it; a glob matching nothing yields no paths.
func expandInclude(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	return matches, nil
}
