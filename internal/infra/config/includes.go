package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const maxIncludeDepth = 10

// includeWalker overlays the files named by "includes" onto a Config.
// Scalar settings from a later file replace earlier ones. Catalog
// strategies are different: every file contributes its own, so a
// conf.d directory can split the catalog into fragments.
type includeWalker struct {
	seen       map[string]bool
	strategies []StrategyConfig
}

func newIncludeWalker(root string) *includeWalker {
	return &includeWalker{seen: map[string]bool{root: true}}
}

// walk merges every file matched by patterns, resolved against dir.
func (w *includeWalker) walk(cfg *Config, dir string, patterns []string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := expandInclude(pattern, dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("config includes: abs path %q: %w", p, err)
			}
			if w.seen[abs] {
				return fmt.Errorf("config includes: circular include detected for %q", abs)
			}
			w.seen[abs] = true

			if err := w.merge(cfg, abs, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// merge decodes one file over cfg, then walks that file's own includes.
// A file's strategies are collected after those of the files it includes,
// so the including file wins on duplicate categories.
func (w *includeWalker) merge(cfg *Config, path string, depth int) error {
	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}

	kept := cfg.Catalog.Strategies
	cfg.Catalog.Strategies = nil
	cfg.Includes = nil
	if err := decode(path, data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	own, nested := cfg.Catalog.Strategies, cfg.Includes
	cfg.Catalog.Strategies, cfg.Includes = kept, nil

	if len(nested) > 0 {
		if err := w.walk(cfg, filepath.Dir(path), nested, depth); err != nil {
			return err
		}
	}
	w.strategies = append(w.strategies, own...)
	return nil
}

// expandInclude resolves a literal path or glob relative to dir. Paths
// that climb out of dir are rejected; a glob without matches is empty.
func expandInclude(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(dir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		// merge reports the missing file.
		return []string{pattern}, nil
	}
	slices.Sort(matches)
	return matches, nil
}
