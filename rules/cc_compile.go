package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mholt/archiver"

	"code.cloudfoundry.org/anubis"
	"code.cloudfoundry.org/anubis/internal/anubiserr"
	"code.cloudfoundry.org/anubis/jobsystem"
)

// CcCompileConfig is the grammar-level shape of a cc_compile object.
type CcCompileConfig struct {
	Name  string   `yaml:"name"`
	Srcs  []string `yaml:"srcs"`
	Deps  []string `yaml:"deps"`
	Flags []string `yaml:"flags"`
}

// CcCompileRule fans out one job per source file plus one per declared
// dependency, then defers to a link continuation that aggregates the
// resulting artifacts into an ArchiveArtifact.
type CcCompileRule struct {
	target anubis.Target
	cfg    CcCompileConfig
}

// ParseCcCompile is the RuleParseFunc registered under the "cc_compile"
// typename.
func ParseCcCompile(target anubis.Target, cfg anubis.ConfigValue) (anubis.Rule, error) {
	var rec CcCompileConfig
	if err := cfg.Decode(target.Name(), &rec); err != nil {
		return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "parsing cc_compile %s", target)
	}
	return &CcCompileRule{target: target, cfg: rec}, nil
}

func (r *CcCompileRule) Name() string          { return r.cfg.Name }
func (r *CcCompileRule) Target() anubis.Target { return r.target }

func (r *CcCompileRule) Build(ctx *anubis.JobContext) *jobsystem.Job {
	display := jobsystem.DisplayInfo{Verb: "CC", Short: r.target.Name(), Detail: r.target.String()}
	return ctx.NewJob(fmt.Sprintf("cc_compile %s", r.target), display, func(job *jobsystem.Job) (jobsystem.Outcome, error) {
		var depJobIDs []jobsystem.JobId
		for _, depLabel := range r.cfg.Deps {
			depTarget, err := anubis.ParseTarget(depLabel)
			if err != nil {
				return jobsystem.Outcome{}, anubiserr.Wrap(anubiserr.KindTarget, err, "parsing dep %q of %s", depLabel, r.target)
			}
			depTarget = depTarget.Resolve(r.target.DirRelativePath())
			id, err := ctx.Anubis.BuildRule(depTarget, ctx)
			if err != nil {
				return jobsystem.Outcome{}, err
			}
			depJobIDs = append(depJobIDs, id)
		}

		var srcJobIDs []jobsystem.JobId
		for _, src := range r.cfg.Srcs {
			src := src
			id, err := ctx.Anubis.BuildSubstep(ctx, r.target, "compile_"+src, func() *jobsystem.Job {
				srcDisplay := jobsystem.DisplayInfo{Verb: "CC", Short: src}
				return ctx.NewJob(fmt.Sprintf("compile %s", src), srcDisplay, func(*jobsystem.Job) (jobsystem.Outcome, error) {
					return compileOneSource(ctx, r.target, src)
				})
			})
			if err != nil {
				return jobsystem.Outcome{}, err
			}
			srcJobIDs = append(srcJobIDs, id)
		}

		blockedBy := make([]jobsystem.JobId, 0, len(depJobIDs)+len(srcJobIDs))
		blockedBy = append(blockedBy, depJobIDs...)
		blockedBy = append(blockedBy, srcJobIDs...)

		linkDisplay := jobsystem.DisplayInfo{Verb: "AR", Short: r.target.Name(), Detail: "link"}
		cont := jobsystem.NewJobWithID(job.ID, r.target.String()+" (link)", linkDisplay, func(*jobsystem.Job) (jobsystem.Outcome, error) {
			return r.link(ctx, srcJobIDs, depJobIDs)
		})
		return jobsystem.Defer(blockedBy, cont), nil
	})
}

func compileOneSource(ctx *anubis.JobContext, target anubis.Target, src string) (jobsystem.Outcome, error) {
	dir := target.DirRelativePath()
	abs := filepath.Join(ctx.Anubis.RootDir(), dir, src)
	digest, err := ctx.Anubis.Hasher().HashFile(abs)
	if err != nil {
		return jobsystem.Outcome{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "hashing source %s", abs)
	}
	return jobsystem.Success(ObjectArtifact{SourcePath: abs, Digest: digest}), nil
}

func (r *CcCompileRule) link(ctx *anubis.JobContext, srcJobIDs, depJobIDs []jobsystem.JobId) (jobsystem.Outcome, error) {
	members := make([]string, 0, len(srcJobIDs)+len(depJobIDs))
	for _, id := range srcJobIDs {
		obj, err := jobsystem.ExpectResult[ObjectArtifact](ctx.Jobs, id)
		if err != nil {
			return jobsystem.Outcome{}, err
		}
		members = append(members, obj.SourcePath)
	}
	for _, id := range depJobIDs {
		// A dependency rule may itself have produced an archive or a bare
		// object; either way its path belongs in this rule's member list.
		if arc, err := jobsystem.GetResult[ArchiveArtifact](ctx.Jobs, id); err == nil {
			members = append(members, arc.Path)
			continue
		}
		obj, err := jobsystem.ExpectResult[ObjectArtifact](ctx.Jobs, id)
		if err != nil {
			return jobsystem.Outcome{}, anubiserr.New(anubiserr.KindArtifact, "dependency job %s produced neither an archive nor an object artifact", id)
		}
		members = append(members, obj.SourcePath)
	}

	outDir := filepath.Join(ctx.Anubis.RootDir(), ".anubis-build", r.target.DirRelativePath())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return jobsystem.Outcome{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "creating output directory %s", outDir)
	}
	outPath := filepath.Join(outDir, r.target.Name()+".a")
	if err := archiver.Tar.Make(outPath, members); err != nil {
		return jobsystem.Outcome{}, anubiserr.Wrap(anubiserr.KindRule, err, "linking %s", r.target)
	}
	return jobsystem.Success(ArchiveArtifact{Path: outPath, Members: members}), nil
}
