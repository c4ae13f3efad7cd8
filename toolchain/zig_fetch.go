// Package toolchain implements toolchain-installation job shapes. Only
// one toolchain is modeled, a Zig SDK fetch standing in for the "Zig libc
// extraction" rule shape the specification's scope lists: full Zig
// compilation is out of scope, but the shape of fetching and caching a
// pinned toolchain before any job can use it belongs to the core's
// component graph.
package toolchain

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	dockerclient "github.com/fsouza/go-dockerclient"

	"code.cloudfoundry.org/anubis"
	"code.cloudfoundry.org/anubis/internal/anubiserr"
	"code.cloudfoundry.org/anubis/jobsystem"
)

// ZigViaDockerEnvVar switches the fetch strategy: when set to "1", the
// pinned Zig SDK is pulled as a container image layer rather than fetched
// directly over HTTP, grounded on the teacher's own dockerClient-backed
// image pulls (docker/docker.go).
const ZigViaDockerEnvVar = "ANUBIS_ZIG_VIA_DOCKER"

// FetchArtifact is produced by a successful toolchain installation job.
type FetchArtifact struct {
	InstallDir string
	Image      string // non-empty only when fetched via Docker
}

// NewZigFetchJob builds a job that installs a pinned Zig SDK into
// {root}/.anubis-temp/zig/{version} (spec §6.2's temp-area convention),
// either by pulling imageRef with Docker or by downloading url directly.
func NewZigFetchJob(ctx *anubis.JobContext, version, imageRef, url string) *jobsystem.Job {
	display := jobsystem.DisplayInfo{Verb: "FETCH", Short: "zig-" + version}
	return ctx.NewJob(fmt.Sprintf("fetch zig toolchain %s", version), display, func(*jobsystem.Job) (jobsystem.Outcome, error) {
		installDir := filepath.Join(ctx.Anubis.RootDir(), ".anubis-temp", "zig", version)
		if err := os.MkdirAll(installDir, 0o755); err != nil {
			return jobsystem.Outcome{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "creating %s", installDir)
		}

		if os.Getenv(ZigViaDockerEnvVar) == "1" {
			if err := fetchViaDocker(imageRef, installDir); err != nil {
				return jobsystem.Failure(anubiserr.Wrap(anubiserr.KindRule, err, "fetching zig %s via docker", version)), nil
			}
			return jobsystem.Success(FetchArtifact{InstallDir: installDir, Image: imageRef}), nil
		}

		if err := fetchViaHTTP(url, installDir); err != nil {
			return jobsystem.Failure(anubiserr.Wrap(anubiserr.KindRule, err, "fetching zig %s via http", version)), nil
		}
		return jobsystem.Success(FetchArtifact{InstallDir: installDir}), nil
	})
}

// fetchViaDocker pulls imageRef and exports its filesystem into destDir,
// mirroring docker/docker.go's ImageManager pattern of talking to the
// daemon through a small client interface rather than shelling out.
func fetchViaDocker(imageRef, destDir string) error {
	client, err := dockerclient.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("connecting to docker daemon: %w", err)
	}

	if err := client.PullImage(dockerclient.PullImageOptions{
		Repository: imageRef,
	}, dockerclient.AuthConfiguration{}); err != nil {
		return fmt.Errorf("pulling %s: %w", imageRef, err)
	}

	container, err := client.CreateContainer(dockerclient.CreateContainerOptions{
		Config: &dockerclient.Config{Image: imageRef, Cmd: []string{"true"}},
	})
	if err != nil {
		return fmt.Errorf("creating extraction container for %s: %w", imageRef, err)
	}
	defer client.RemoveContainer(dockerclient.RemoveContainerOptions{ID: container.ID, Force: true})

	r, w := io.Pipe()
	go func() {
		err := client.DownloadFromContainer(container.ID, dockerclient.DownloadFromContainerOptions{
			Path:         "/",
			OutputStream: w,
		})
		w.CloseWithError(err)
	}()
	defer r.Close()

	out, err := os.Create(filepath.Join(destDir, "rootfs.tar"))
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}

func fetchViaHTTP(url, destDir string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(filepath.Join(destDir, "zig.tar.xz"))
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}
