// Package anubis implements the memoizing build-graph front end described
// in the core specification: target/pattern identity, the job scheduler's
// caller-facing Orchestrator, and the Mode/Toolchain/Rule data model the
// scheduler's job functions consume.
package anubis

import (
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-multierror"

	"code.cloudfoundry.org/anubis/fshash"
	"code.cloudfoundry.org/anubis/internal/anubiserr"
	"code.cloudfoundry.org/anubis/jobsystem"
)

const dirExistsCacheSize = 4096

// resolvedConfigKey is the cache key for §3.6's "Resolved config" cache.
type resolvedConfigKey struct {
	Relpath    string
	ModeTarget Target
}

// ruleKey is the cache key for the rule cache. Keyed by (target, mode),
// the conservative choice spec.md §9's Open Questions section calls for:
// a rule's deserialized fields can be mode-sensitive via select, so the
// cache must not collapse distinct modes onto one entry.
type ruleKey struct {
	Target     Target
	ModeTarget Target
}

// jobKey is the cache key for the rule-level job cache (§3.6, §4.5).
type jobKey struct {
	ModeTarget Target
	Target     Target
	Action     string
}

// Orchestrator is the memoizing front end constructed once per build
// invocation (spec §3.7). All its caches are safe for concurrent use by
// multiple worker goroutines.
type Orchestrator struct {
	rootDir string
	reader  ConfigReader
	jobs    *jobsystem.JobSystem
	hasher  *fshash.FsTreeHasher

	ruleTypes map[string]RuleTypeInfo // write-once at construction

	dirExists *lru.Cache[string, bool]

	rawConfigCache      sync.Map // string -> *memoEntry[ConfigValue]
	resolvedConfigCache sync.Map // resolvedConfigKey -> *memoEntry[ConfigValue]
	modeCache           sync.Map // Target -> *memoEntry[*Mode]
	toolchainCache      sync.Map // toolchainKey -> *memoEntry[*Toolchain]
	ruleCache           sync.Map // ruleKey -> *memoEntry[Rule]
	jobCache            sync.Map // jobKey -> *memoEntry[jobsystem.JobId]

	// impureCache is supplemental (not in spec.md's §3.6 table): a
	// per-target memo of whether a rule's transitive dependency set
	// includes an action whose output isn't purely a function of its
	// declared inputs, grounded on the original's
	// impure_transitive_deps_cache.
	impureCache sync.Map // Target -> *memoEntry[bool]
}

// New constructs an Orchestrator rooted at rootDir, with ruleTypes
// registered read-only for the Orchestrator's lifetime.
func New(rootDir string, reader ConfigReader, jobs *jobsystem.JobSystem, hasher *fshash.FsTreeHasher, ruleTypes []RuleTypeInfo) (*Orchestrator, error) {
	cache, err := lru.New[string, bool](dirExistsCacheSize)
	if err != nil {
		return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "constructing directory-existence cache")
	}
	types := make(map[string]RuleTypeInfo, len(ruleTypes))
	for _, rt := range ruleTypes {
		types[rt.Typename] = rt
	}
	return &Orchestrator{
		rootDir:   rootDir,
		reader:    reader,
		jobs:      jobs,
		hasher:    hasher,
		ruleTypes: types,
		dirExists: cache,
	}, nil
}

// IsRegisteredRuleTypeName satisfies RuleTypeNameLookup, letting pattern
// expansion filter ANUBIS file objects down to registered rule types.
func (o *Orchestrator) IsRegisteredRuleTypeName(typename string) bool {
	_, ok := o.ruleTypes[typename]
	return ok
}

// Jobs exposes the shared JobSystem a rule's job functions dispatch into.
func (o *Orchestrator) Jobs() *jobsystem.JobSystem { return o.jobs }

// Hasher exposes the shared filesystem-tree hasher.
func (o *Orchestrator) Hasher() *fshash.FsTreeHasher { return o.hasher }

// RootDir is the repository root all target config-relative paths resolve
// against.
func (o *Orchestrator) RootDir() string { return o.rootDir }

func (o *Orchestrator) rawConfig(relpath string) (ConfigValue, error) {
	return memoize(&o.rawConfigCache, relpath, func() (ConfigValue, error) {
		v, err := o.reader.ReadFile(filepath.Join(o.rootDir, relpath))
		if err != nil {
			return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "reading config %s", relpath)
		}
		return v, nil
	})
}

// GetMode resolves modeTarget into a Mode, injecting host_platform and
// host_arch after deserialization (spec §3.4, §4.3).
func (o *Orchestrator) GetMode(modeTarget Target) (*Mode, error) {
	return memoize(&o.modeCache, modeTarget, func() (*Mode, error) {
		raw, err := o.rawConfig(modeTarget.ConfigFileRelativePath())
		if err != nil {
			return nil, err
		}
		var rec modeRecord
		if err := raw.Decode(modeTarget.Name(), &rec); err != nil {
			return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "decoding mode %s", modeTarget)
		}
		return &Mode{
			Name:      rec.Name,
			Variables: injectHostVariables(rec.Variables),
			Target:    modeTarget,
		}, nil
	})
}

// GetResolvedConfig resolves the raw config at configRelpath against
// mode's variables and its own directory context (spec §4.3).
func (o *Orchestrator) GetResolvedConfig(configRelpath string, mode *Mode) (ConfigValue, error) {
	key := resolvedConfigKey{Relpath: configRelpath, ModeTarget: mode.Target}
	return memoize(&o.resolvedConfigCache, key, func() (ConfigValue, error) {
		raw, err := o.rawConfig(configRelpath)
		if err != nil {
			return nil, err
		}
		dir := filepath.Dir(filepath.Join(o.rootDir, configRelpath))
		resolved, err := raw.Resolve(mode.Variables, dir)
		if err != nil {
			return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "resolving %s against mode %s", configRelpath, mode.Target)
		}
		return resolved, nil
	})
}

// GetToolchain resolves (mode, toolchainTarget) into a Toolchain (spec §4.3).
func (o *Orchestrator) GetToolchain(mode *Mode, toolchainTarget Target) (*Toolchain, error) {
	key := toolchainKey{ModeTarget: mode.Target, ToolchainTarget: toolchainTarget}
	return memoize(&o.toolchainCache, key, func() (*Toolchain, error) {
		resolved, err := o.GetResolvedConfig(toolchainTarget.ConfigFileRelativePath(), mode)
		if err != nil {
			return nil, err
		}
		obj, _, ok := resolved.Object(toolchainTarget.Name())
		if !ok {
			return nil, anubiserr.New(anubiserr.KindConfig, "no object named %s in %s", toolchainTarget.Name(), toolchainTarget.ConfigFileRelativePath())
		}
		var rec toolchainRecord
		if err := resolved.Decode(toolchainTarget.Name(), &rec); err != nil {
			return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "decoding toolchain %s", toolchainTarget)
		}
		return &Toolchain{
			Name:            rec.Name,
			ModeTarget:      mode.Target,
			ToolchainTarget: toolchainTarget,
			Raw:             obj,
		}, nil
	})
}

// GetRule resolves target into a Rule under mode (mode may be nil for
// mode-independent targets). (spec §4.3)
func (o *Orchestrator) GetRule(target Target, mode *Mode) (Rule, error) {
	modeTarget := Target{}
	if mode != nil {
		modeTarget = mode.Target
	}
	key := ruleKey{Target: target, ModeTarget: modeTarget}
	return memoize(&o.ruleCache, key, func() (Rule, error) {
		var resolved ConfigValue
		var err error
		if mode != nil {
			resolved, err = o.GetResolvedConfig(target.ConfigFileRelativePath(), mode)
		} else {
			resolved, err = o.rawConfig(target.ConfigFileRelativePath())
		}
		if err != nil {
			return nil, err
		}
		obj, typename, ok := resolved.Object(target.Name())
		if !ok {
			return nil, anubiserr.New(anubiserr.KindConfig, "no object named %s in %s", target.Name(), target.ConfigFileRelativePath())
		}
		info, ok := o.ruleTypes[typename]
		if !ok {
			return nil, anubiserr.New(anubiserr.KindConfig, "unregistered rule typename %q for target %s", typename, target)
		}
		rule, err := info.Parse(target, obj)
		if err != nil {
			return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "parsing rule %s", target)
		}
		return rule, nil
	})
}

// BuildRule is the atomic "ensure a build job exists" operation (spec
// §4.3): the first caller for a given (mode, target) resolves the rule and
// schedules its job; every other caller, whether concurrent or later,
// receives the same JobId.
func (o *Orchestrator) BuildRule(target Target, ctx *JobContext) (jobsystem.JobId, error) {
	modeTarget := Target{}
	var mode *Mode
	if ctx.Mode != nil {
		modeTarget = ctx.Mode.Target
		mode = ctx.Mode
	}
	key := jobKey{ModeTarget: modeTarget, Target: target, Action: "build_rule"}
	return memoize(&o.jobCache, key, func() (jobsystem.JobId, error) {
		rule, err := o.GetRule(target, mode)
		if err != nil {
			return 0, err
		}
		job := rule.Build(ctx)
		if err := o.jobs.AddJob(job); err != nil {
			return 0, err
		}
		return job.ID, nil
	})
}

// BuildSubstep gives rule bodies the same atomic reserve-or-reuse
// semantics as BuildRule for finer-grained substeps (spec §4.5, e.g.
// "compile_{src}"): build is invoked at most once per (mode, target,
// action) for this Orchestrator's lifetime.
func (o *Orchestrator) BuildSubstep(ctx *JobContext, target Target, action string, build func() *jobsystem.Job) (jobsystem.JobId, error) {
	modeTarget := Target{}
	if ctx.Mode != nil {
		modeTarget = ctx.Mode.Target
	}
	key := jobKey{ModeTarget: modeTarget, Target: target, Action: action}
	return memoize(&o.jobCache, key, func() (jobsystem.JobId, error) {
		job := build()
		if err := o.jobs.AddJob(job); err != nil {
			return 0, err
		}
		return job.ID, nil
	})
}

// IsImpure memoizes whether target's transitive dependency set includes an
// impure action, computed by compute on first call.
func (o *Orchestrator) IsImpure(target Target, compute func() (bool, error)) (bool, error) {
	return memoize(&o.impureCache, target, compute)
}

// VerifyDirectories bulk-checks that every path in paths exists and is a
// directory, reporting all missing paths in a single error (spec §4.3).
func (o *Orchestrator) VerifyDirectories(paths []string, kind string) error {
	var result *multierror.Error
	for _, p := range paths {
		if ok, hit := o.dirExists.Get(p); hit && ok {
			continue
		}
		info, err := os.Stat(p)
		exists := err == nil && info.IsDir()
		o.dirExists.Add(p, exists)
		if !exists {
			result = multierror.Append(result, anubiserr.New(anubiserr.KindFilesystem, "%s directory does not exist: %s", kind, p))
		}
	}
	if result != nil {
		return result.ErrorOrNil()
	}
	return nil
}
