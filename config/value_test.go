package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
cc_compile:
  - name: mylib
    srcs:
      - ./src/a.c
      - ./src/b.c
    flags:
      - "${opt_level}"
archive:
  - name: bundle
    deps:
      - ":mylib"
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ANUBIS")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	return path
}

func TestReadFileAndObjectLookup(t *testing.T) {
	path := writeSample(t)
	v, err := NewReader().ReadFile(path)
	require.NoError(t, err)

	obj, typename, ok := v.Object("mylib")
	require.True(t, ok)
	assert.Equal(t, "cc_compile", typename)
	assert.NotNil(t, obj)

	_, _, ok = v.Object("does-not-exist")
	assert.False(t, ok)
}

func TestDecodeIntoTypedStruct(t *testing.T) {
	path := writeSample(t)
	v, err := NewReader().ReadFile(path)
	require.NoError(t, err)

	var target struct {
		Name  string   `yaml:"name"`
		Srcs  []string `yaml:"srcs"`
		Flags []string `yaml:"flags"`
	}
	require.NoError(t, v.Decode("mylib", &target))
	assert.Equal(t, "mylib", target.Name)
	assert.Equal(t, []string{"./src/a.c", "./src/b.c"}, target.Srcs)
}

func TestResolveSubstitutesVarsAndRewritesRelativePaths(t *testing.T) {
	path := writeSample(t)
	v, err := NewReader().ReadFile(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	resolved, err := v.Resolve(map[string]string{"opt_level": "-O2"}, dir)
	require.NoError(t, err)

	var target struct {
		Srcs  []string `yaml:"srcs"`
		Flags []string `yaml:"flags"`
	}
	obj, _, ok := resolved.Object("mylib")
	require.True(t, ok)
	require.NoError(t, obj.Decode("mylib", &target))

	assert.Equal(t, []string{"-O2"}, target.Flags)
	for _, src := range target.Srcs {
		assert.True(t, filepath.IsAbs(src))
		assert.Contains(t, src, dir)
	}
}

func TestDecodeMissingObjectErrors(t *testing.T) {
	path := writeSample(t)
	v, err := NewReader().ReadFile(path)
	require.NoError(t, err)

	var out map[string]interface{}
	err = v.Decode("nope", &out)
	assert.Error(t, err)
}
