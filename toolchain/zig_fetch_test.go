package toolchain_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.cloudfoundry.org/anubis"
	"code.cloudfoundry.org/anubis/config"
	"code.cloudfoundry.org/anubis/fshash"
	"code.cloudfoundry.org/anubis/jobsystem"
	"code.cloudfoundry.org/anubis/toolchain"
)

func TestNewZigFetchJobViaHTTP(t *testing.T) {
	os.Unsetenv(toolchain.ZigViaDockerEnvVar)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-zig-sdk-bytes"))
	}))
	defer server.Close()

	hasher, err := fshash.New(fshash.Fast)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hasher.Close() })

	rootDir := t.TempDir()
	jobs := jobsystem.New()
	orch, err := anubis.New(rootDir, config.NewReader(), jobs, hasher, nil)
	require.NoError(t, err)

	ctx := &anubis.JobContext{Anubis: orch, Jobs: jobs}
	job := toolchain.NewZigFetchJob(ctx, "0.13.0", "unused-image", server.URL)
	require.NoError(t, jobs.AddJob(job))
	require.NoError(t, jobs.RunToCompletion(1, nil))

	artifact, err := jobsystem.ExpectResult[toolchain.FetchArtifact](jobs, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "", artifact.Image)
	assert.DirExists(t, artifact.InstallDir)

	downloaded := filepath.Join(artifact.InstallDir, "zig.tar.xz")
	assert.FileExists(t, downloaded)
}

func TestNewZigFetchJobHTTPFailurePropagatesAsOutcomeFailure(t *testing.T) {
	os.Unsetenv(toolchain.ZigViaDockerEnvVar)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	hasher, err := fshash.New(fshash.Fast)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hasher.Close() })

	rootDir := t.TempDir()
	jobs := jobsystem.New()
	orch, err := anubis.New(rootDir, config.NewReader(), jobs, hasher, nil)
	require.NoError(t, err)

	ctx := &anubis.JobContext{Anubis: orch, Jobs: jobs}
	job := toolchain.NewZigFetchJob(ctx, "0.13.0", "unused-image", server.URL)
	require.NoError(t, jobs.AddJob(job))

	runErr := jobs.RunToCompletion(1, nil)
	assert.Error(t, runErr)
}
