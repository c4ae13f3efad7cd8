package anubis

import "runtime"

// Mode is the deserialized record naming a build mode: a set of
// select-driving string variables plus the target that defined it (spec
// §3.4). host_platform/host_arch are injected by the Orchestrator after
// deserialization, never supplied by the grammar layer.
type Mode struct {
	Name      string
	Variables map[string]string
	Target    Target
}

// modeRecord is the shape decoded directly off the configuration grammar,
// before host_platform/host_arch injection.
type modeRecord struct {
	Name      string            `yaml:"name"`
	Variables map[string]string `yaml:"variables"`
}

// normalizedArch maps Go's GOARCH spelling to the scheme the rest of the
// build graph expects (mirroring common cross-compile toolchain naming).
var normalizedArch = map[string]string{
	"amd64": "x86_64",
	"386":   "x86",
	"arm64": "aarch64",
	"arm":   "arm",
}

func hostPlatform() string { return runtime.GOOS }

func hostArch() string {
	if n, ok := normalizedArch[runtime.GOARCH]; ok {
		return n
	}
	return runtime.GOARCH
}

// injectHostVariables returns a copy of vars with host_platform/host_arch
// set from the executing environment, overriding anything the grammar
// layer may have supplied for those two keys.
func injectHostVariables(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	out["host_platform"] = hostPlatform()
	out["host_arch"] = hostArch()
	return out
}
