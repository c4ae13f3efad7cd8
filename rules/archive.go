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

// ArchiveConfig is the grammar-level shape of an archive object.
type ArchiveConfig struct {
	Name   string   `yaml:"name"`
	Files  []string `yaml:"files"`
	Deps   []string `yaml:"deps"`
	Format string   `yaml:"format"` // "tar" or "targz"; defaults to "tar"
}

// ArchiveRule packages a set of files (and the artifacts of declared
// dependency rules) into a single tar archive, grounded on the teacher's
// own use of mholt/archiver to produce compiled-package tarballs.
type ArchiveRule struct {
	target anubis.Target
	cfg    ArchiveConfig
}

// ParseArchive is the RuleParseFunc registered under the "archive" typename.
func ParseArchive(target anubis.Target, cfg anubis.ConfigValue) (anubis.Rule, error) {
	var rec ArchiveConfig
	if err := cfg.Decode(target.Name(), &rec); err != nil {
		return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "parsing archive %s", target)
	}
	return &ArchiveRule{target: target, cfg: rec}, nil
}

func (r *ArchiveRule) Name() string          { return r.cfg.Name }
func (r *ArchiveRule) Target() anubis.Target { return r.target }

func (r *ArchiveRule) Build(ctx *anubis.JobContext) *jobsystem.Job {
	display := jobsystem.DisplayInfo{Verb: "ARCHIVE", Short: r.target.Name()}
	return ctx.NewJob(fmt.Sprintf("archive %s", r.target), display, func(job *jobsystem.Job) (jobsystem.Outcome, error) {
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

		cont := jobsystem.NewJobWithID(job.ID, r.target.String()+" (create archive)", display, func(*jobsystem.Job) (jobsystem.Outcome, error) {
			return r.pack(ctx, depJobIDs)
		})
		return jobsystem.Defer(depJobIDs, cont), nil
	})
}

func (r *ArchiveRule) pack(ctx *anubis.JobContext, depJobIDs []jobsystem.JobId) (jobsystem.Outcome, error) {
	dir := r.target.DirRelativePath()
	var sources []string
	for _, f := range r.cfg.Files {
		sources = append(sources, filepath.Join(ctx.Anubis.RootDir(), dir, f))
	}
	for _, id := range depJobIDs {
		if arc, err := jobsystem.GetResult[ArchiveArtifact](ctx.Jobs, id); err == nil {
			sources = append(sources, arc.Path)
			continue
		}
		obj, err := jobsystem.ExpectResult[ObjectArtifact](ctx.Jobs, id)
		if err != nil {
			return jobsystem.Outcome{}, anubiserr.New(anubiserr.KindArtifact, "dependency job %s produced no usable artifact for archiving", id)
		}
		sources = append(sources, obj.SourcePath)
	}

	outDir := filepath.Join(ctx.Anubis.RootDir(), ".anubis-build", dir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return jobsystem.Outcome{}, anubiserr.Wrap(anubiserr.KindFilesystem, err, "creating output directory %s", outDir)
	}
	outPath := filepath.Join(outDir, r.target.Name()+archiveExt(r.cfg.Format))

	var archiveErr error
	switch r.cfg.Format {
	case "targz":
		archiveErr = archiver.TarGz.Make(outPath, sources)
	default:
		archiveErr = archiver.Tar.Make(outPath, sources)
	}
	if archiveErr != nil {
		return jobsystem.Outcome{}, anubiserr.Wrap(anubiserr.KindRule, archiveErr, "packing archive %s", r.target)
	}

	return jobsystem.Success(ArchiveArtifact{Path: outPath, Members: sources}), nil
}

func archiveExt(format string) string {
	if format == "targz" {
		return ".tar.gz"
	}
	return ".tar"
}
