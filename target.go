package anubis

import (
	"strings"

	"code.cloudfoundry.org/anubis/internal/anubiserr"
)

// Target is a canonical label identifying a build rule instance, either
// absolute ("//dir/path:name") or relative (":name").
//
// Equality and hashing are defined over the canonical string, so Target is
// safe to use as a map key directly.
type Target struct {
	raw string
	sep int
}

// ParseTarget parses a target label per the grammar in spec §3.1:
//
//   - absolute: begins with "//", contains exactly one ':', no '/' after it.
//   - relative: begins with ':', no '/' anywhere.
//
// Backslashes are normalized to forward slashes before parsing.
func ParseTarget(s string) (Target, error) {
	norm := strings.ReplaceAll(s, "\\", "/")

	if strings.HasPrefix(norm, "//") {
		idx := strings.IndexByte(norm, ':')
		if idx < 0 {
			return Target{}, anubiserr.New(anubiserr.KindTarget, "absolute target %q is missing ':'", s)
		}
		if strings.Count(norm, ":") != 1 {
			return Target{}, anubiserr.New(anubiserr.KindTarget, "absolute target %q has more than one ':'", s)
		}
		if strings.Contains(norm[idx+1:], "/") {
			return Target{}, anubiserr.New(anubiserr.KindTarget, "absolute target %q has '/' after ':'", s)
		}
		if idx+1 == len(norm) {
			return Target{}, anubiserr.New(anubiserr.KindTarget, "absolute target %q has empty name", s)
		}
		return Target{raw: norm, sep: idx}, nil
	}

	if strings.HasPrefix(norm, ":") {
		if strings.Contains(norm, "/") {
			return Target{}, anubiserr.New(anubiserr.KindTarget, "relative target %q must not contain '/'", s)
		}
		if len(norm) == 1 {
			return Target{}, anubiserr.New(anubiserr.KindTarget, "relative target %q has empty name", s)
		}
		return Target{raw: norm, sep: 0}, nil
	}

	return Target{}, anubiserr.New(anubiserr.KindTarget, "target %q must start with '//' or ':'", s)
}

// MustParseTarget is ParseTarget but panics on error; for tests and constants.
func MustParseTarget(s string) Target {
	t, err := ParseTarget(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the canonical label, identical to the input modulo
// backslash normalization.
func (t Target) String() string { return t.raw }

// IsAbsolute reports whether the target begins with "//".
func (t Target) IsAbsolute() bool { return strings.HasPrefix(t.raw, "//") }

// IsZero reports whether t is the zero value (not a parsed target).
func (t Target) IsZero() bool { return t.raw == "" }

// Name returns the target name, the portion after the ':'.
func (t Target) Name() string {
	return t.raw[t.sep+1:]
}

// DirRelativePath returns the directory-relative path ("dir/path") for an
// absolute target. For a relative target it returns "".
func (t Target) DirRelativePath() string {
	if !t.IsAbsolute() {
		return ""
	}
	return t.raw[2:t.sep]
}

// ConfigFileRelativePath returns the config-file relative path
// ("//dir/path/ANUBIS") for an absolute target. For a relative target it
// returns "".
func (t Target) ConfigFileRelativePath() string {
	if !t.IsAbsolute() {
		return ""
	}
	dir := t.DirRelativePath()
	if dir == "" {
		return "//ANUBIS"
	}
	return "//" + dir + "/ANUBIS"
}

// Resolve resolves a relative target against a directory-relative path,
// producing an absolute target. Resolving an already-absolute target
// returns it unchanged (identity).
func (t Target) Resolve(dirRelativePath string) Target {
	if t.IsAbsolute() {
		return t
	}
	name := t.Name()
	if dirRelativePath == "" {
		raw := "//:" + name
		return Target{raw: raw, sep: 2}
	}
	raw := "//" + dirRelativePath + ":" + name
	return Target{raw: raw, sep: len(raw) - len(name) - 1}
}

// Equal reports whether two targets have the same canonical string.
func (t Target) Equal(o Target) bool { return t.raw == o.raw }
