package rules_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.cloudfoundry.org/anubis"
	"code.cloudfoundry.org/anubis/config"
	"code.cloudfoundry.org/anubis/fshash"
	"code.cloudfoundry.org/anubis/jobsystem"
	"code.cloudfoundry.org/anubis/rules"
)

func newTestContext(t *testing.T) (*anubis.JobContext, *jobsystem.JobSystem, string) {
	t.Helper()
	hasher, err := fshash.New(fshash.Fast)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hasher.Close() })

	rootDir := t.TempDir()
	jobs := jobsystem.New()
	orch, err := anubis.New(rootDir, config.NewReader(), jobs, hasher, rules.RegisterAll())
	require.NoError(t, err)

	return &anubis.JobContext{Anubis: orch, Jobs: jobs}, jobs, rootDir
}

func writeANUBIS(t *testing.T, rootDir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "ANUBIS"), []byte(content), 0o644))
}

func TestCcCompileFansOutAndLinks(t *testing.T) {
	ctx, jobs, rootDir := newTestContext(t)

	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "a.c"), []byte("int a(){return 0;}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "b.c"), []byte("int b(){return 0;}"), 0o644))

	writeANUBIS(t, rootDir, `
cc_compile:
  - name: mylib
    srcs:
      - a.c
      - b.c
`)

	target := anubis.MustParseTarget("//:mylib")
	id, err := ctx.Anubis.BuildRule(target, ctx)
	require.NoError(t, err)

	require.NoError(t, jobs.RunToCompletion(2, nil))

	artifact, err := jobsystem.ExpectResult[rules.ArchiveArtifact](jobs, id)
	require.NoError(t, err)
	assert.Len(t, artifact.Members, 2)
	assert.Contains(t, artifact.Path, "mylib.a")
}

func TestCcCompileHandlesSharedSourceAcrossRules(t *testing.T) {
	ctx, jobs, rootDir := newTestContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "shared.c"), []byte("int s(){return 1;}"), 0o644))

	writeANUBIS(t, rootDir, `
cc_compile:
  - name: liba
    srcs:
      - shared.c
  - name: libb
    srcs:
      - shared.c
`)

	idA, err := ctx.Anubis.BuildRule(anubis.MustParseTarget("//:liba"), ctx)
	require.NoError(t, err)
	idB, err := ctx.Anubis.BuildRule(anubis.MustParseTarget("//:libb"), ctx)
	require.NoError(t, err)

	require.NoError(t, jobs.RunToCompletion(2, nil))

	_, err = jobsystem.ExpectResult[rules.ArchiveArtifact](jobs, idA)
	require.NoError(t, err)
	_, err = jobsystem.ExpectResult[rules.ArchiveArtifact](jobs, idB)
	require.NoError(t, err)
}

func TestArchivePacksFilesAndDependencyArtifacts(t *testing.T) {
	ctx, jobs, rootDir := newTestContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "readme.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "obj.c"), []byte("int o(){return 0;}"), 0o644))

	writeANUBIS(t, rootDir, `
cc_compile:
  - name: objs
    srcs:
      - obj.c
archive:
  - name: bundle
    files:
      - readme.txt
    deps:
      - ":objs"
`)

	id, err := ctx.Anubis.BuildRule(anubis.MustParseTarget("//:bundle"), ctx)
	require.NoError(t, err)

	require.NoError(t, jobs.RunToCompletion(2, nil))

	artifact, err := jobsystem.ExpectResult[rules.ArchiveArtifact](jobs, id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(artifact.Members), 2)
	_, statErr := os.Stat(artifact.Path)
	assert.NoError(t, statErr)
}

func TestCommandSucceeds(t *testing.T) {
	ctx, jobs, rootDir := newTestContext(t)
	writeANUBIS(t, rootDir, `
command:
  - name: ok
    argv:
      - /bin/true
`)

	id, err := ctx.Anubis.BuildRule(anubis.MustParseTarget("//:ok"), ctx)
	require.NoError(t, err)
	require.NoError(t, jobs.RunToCompletion(1, nil))

	artifact, err := jobsystem.ExpectResult[rules.CommandArtifact](jobs, id)
	require.NoError(t, err)
	assert.Equal(t, 0, artifact.ExitCode)
}

func TestCommandFailureSurfacesNonZeroExit(t *testing.T) {
	ctx, jobs, rootDir := newTestContext(t)
	writeANUBIS(t, rootDir, `
command:
  - name: fail
    argv:
      - /bin/false
`)

	id, err := ctx.Anubis.BuildRule(anubis.MustParseTarget("//:fail"), ctx)
	require.NoError(t, err)

	runErr := jobs.RunToCompletion(1, nil)
	require.Error(t, runErr)

	_, resultErr := jobsystem.ExpectResult[rules.CommandArtifact](jobs, id)
	assert.Error(t, resultErr)
}

func TestParseCommandRejectsEmptyArgv(t *testing.T) {
	_, err := rules.ParseCommand(anubis.MustParseTarget("//:bad"), fakeConfigValue{})
	assert.Error(t, err)
}

// fakeConfigValue decodes into a zero-value CommandConfig, exercising
// ParseCommand's empty-argv validation without needing a real ConfigValue.
type fakeConfigValue struct{}

func (fakeConfigValue) Resolve(map[string]string, string) (anubis.ConfigValue, error) {
	return fakeConfigValue{}, nil
}
func (fakeConfigValue) Object(string) (anubis.ConfigValue, string, bool) { return nil, "", false }
func (fakeConfigValue) Decode(string, interface{}) error                { return nil }
