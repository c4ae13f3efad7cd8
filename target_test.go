package anubis

import "testing"

func TestParseTargetAbsolute(t *testing.T) {
	tgt, err := ParseTarget("//foo/bar:baz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt.String() != "//foo/bar:baz" {
		t.Errorf("round-trip mismatch: %s", tgt.String())
	}
	if tgt.Name() != "baz" {
		t.Errorf("Name() = %q, want baz", tgt.Name())
	}
	if tgt.DirRelativePath() != "foo/bar" {
		t.Errorf("DirRelativePath() = %q, want foo/bar", tgt.DirRelativePath())
	}
	if tgt.ConfigFileRelativePath() != "//foo/bar/ANUBIS" {
		t.Errorf("ConfigFileRelativePath() = %q", tgt.ConfigFileRelativePath())
	}
}

func TestParseTargetRelative(t *testing.T) {
	tgt, err := ParseTarget(":baz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt.IsAbsolute() {
		t.Error("expected relative target")
	}
	if tgt.Name() != "baz" {
		t.Errorf("Name() = %q, want baz", tgt.Name())
	}
}

func TestParseTargetBackslashNormalization(t *testing.T) {
	tgt, err := ParseTarget(`//foo\bar:baz`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt.String() != "//foo/bar:baz" {
		t.Errorf("got %s", tgt.String())
	}
}

func TestParseTargetErrors(t *testing.T) {
	cases := []string{
		"foo/bar:baz",    // missing //
		"//foo:bar:baz",  // two colons
		"//foo:bar/baz",  // slash after colon
		"//foo",          // no colon
		":foo/bar",       // slash in relative
		"",                // empty
	}
	for _, c := range cases {
		if _, err := ParseTarget(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}

func TestTargetResolve(t *testing.T) {
	rel := MustParseTarget(":lib")
	resolved := rel.Resolve("foo/bar")
	if resolved.String() != "//foo/bar:lib" {
		t.Errorf("got %s", resolved.String())
	}

	abs := MustParseTarget("//a:b")
	if abs.Resolve("x/y").String() != abs.String() {
		t.Error("resolving an absolute target must be identity")
	}
}

func TestTargetEquality(t *testing.T) {
	a := MustParseTarget("//foo:bar")
	b := MustParseTarget("//foo:bar")
	if !a.Equal(b) {
		t.Error("expected equal targets")
	}
	m := map[Target]int{a: 1}
	if m[b] != 1 {
		t.Error("expected Target to work as map key across equal instances")
	}
}
