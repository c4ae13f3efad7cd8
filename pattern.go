package anubis

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"code.cloudfoundry.org/anubis/internal/anubiserr"
	"gopkg.in/yaml.v2"
)

// TargetPattern is a label ending in "/..." with at least "///..." (six
// characters minimum), matching every target declared in an ANUBIS file at
// or below the pattern's base directory.
type TargetPattern struct {
	raw     string
	baseDir string
}

const patternSuffix = "/..."

// IsPattern recognizes the "//dir/..." (or "///...") shape.
func IsPattern(s string) bool {
	norm := strings.ReplaceAll(s, "\\", "/")
	return len(norm) >= len(patternSuffix)+2 &&
		strings.HasPrefix(norm, "//") &&
		strings.HasSuffix(norm, patternSuffix)
}

// ParsePattern parses a pattern label, returning its base directory. A
// string that doesn't match the pattern shape is reported as a TargetError.
func ParsePattern(s string) (TargetPattern, error) {
	norm := strings.ReplaceAll(s, "\\", "/")
	if !IsPattern(norm) {
		return TargetPattern{}, anubiserr.New(anubiserr.KindTarget, "%q is not a valid target pattern", s)
	}
	base := strings.TrimSuffix(norm, patternSuffix)
	base = strings.TrimPrefix(base, "//")
	return TargetPattern{raw: norm, baseDir: base}, nil
}

// String returns the canonical pattern string.
func (p TargetPattern) String() string { return p.raw }

// BaseDir returns the directory-relative path the pattern expands from. The
// empty string means the repository root (the "///..." form).
func (p TargetPattern) BaseDir() string { return p.baseDir }

// RuleTypeNameLookup reports whether a config-level typename corresponds to
// a registered rule type, used to filter top-level objects during
// expansion.
type RuleTypeNameLookup interface {
	IsRegisteredRuleTypeName(typename string) bool
}

// ConfigFileName is the per-directory configuration file name, spec §6.2.
const ConfigFileName = "ANUBIS"

// skippedDirNames are directory names pattern expansion never descends into.
var skippedDirNames = map[string]bool{
	"node_modules": true,
	"target":       true,
}

// Expand walks rootDir/p.baseDir recursively, parsing every ANUBIS file it
// finds and emitting "//{relative_dir}:{name}" for every top-level object
// whose typename is registered, per spec §4.2. The result is sorted.
func (p TargetPattern) Expand(rootDir string, lookup RuleTypeNameLookup) ([]Target, error) {
	start := filepath.Join(rootDir, filepath.FromSlash(p.baseDir))

	var out []Target
	err := filepath.Walk(start, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != start && (strings.HasPrefix(name, ".") || skippedDirNames[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() != ConfigFileName {
			return nil
		}

		rel, err := filepath.Rel(rootDir, filepath.Dir(path))
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}

		names, err := objectNamesInFile(path, lookup)
		if err != nil {
			return anubiserr.Wrap(anubiserr.KindConfig, err, "parsing %s", path)
		}
		for _, name := range names {
			var raw string
			if rel == "" {
				raw = "//:" + name
			} else {
				raw = "//" + rel + ":" + name
			}
			tgt, err := ParseTarget(raw)
			if err != nil {
				return err
			}
			out = append(out, tgt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// objectNamesInFile reads the raw ANUBIS-file YAML document (a top-level
// mapping of typename -> object) and extracts the "name" field of every
// object whose typename is registered. This is deliberately minimal: full
// grammar parsing (select/glob resolution) lives in package config and is
// not needed for pattern expansion, which only inspects un-resolved shape.
func objectNamesInFile(path string, lookup RuleTypeNameLookup) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string][]map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var names []string
	for typename, objs := range doc {
		if lookup != nil && !lookup.IsRegisteredRuleTypeName(typename) {
			continue
		}
		for _, obj := range objs {
			nameVal, ok := obj["name"]
			if !ok {
				continue
			}
			if name, ok := nameVal.(string); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}
