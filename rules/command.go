package rules

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"

	"code.cloudfoundry.org/anubis"
	"code.cloudfoundry.org/anubis/internal/anubiserr"
	"code.cloudfoundry.org/anubis/jobsystem"
)

// CommandConfig is the grammar-level shape of a command object: an
// arbitrary shell-out, the escape hatch rule shape for anything the other
// rule types don't model.
type CommandConfig struct {
	Name string   `yaml:"name"`
	Argv []string `yaml:"argv"`
	Deps []string `yaml:"deps"`
}

// CommandRule runs an arbitrary executable as its job body. It has no
// fan-out of its own beyond its declared dependencies; it exists to
// exercise the "rule whose job is a leaf, single-step action" shape.
type CommandRule struct {
	target anubis.Target
	cfg    CommandConfig
}

// ParseCommand is the RuleParseFunc registered under the "command" typename.
func ParseCommand(target anubis.Target, cfg anubis.ConfigValue) (anubis.Rule, error) {
	var rec CommandConfig
	if err := cfg.Decode(target.Name(), &rec); err != nil {
		return nil, anubiserr.Wrap(anubiserr.KindConfig, err, "parsing command %s", target)
	}
	if len(rec.Argv) == 0 {
		return nil, anubiserr.New(anubiserr.KindConfig, "command %s has an empty argv", target)
	}
	return &CommandRule{target: target, cfg: rec}, nil
}

func (r *CommandRule) Name() string          { return r.cfg.Name }
func (r *CommandRule) Target() anubis.Target { return r.target }

func (r *CommandRule) Build(ctx *anubis.JobContext) *jobsystem.Job {
	display := jobsystem.DisplayInfo{Verb: "RUN", Short: r.target.Name(), Detail: r.cfg.Argv[0]}
	return ctx.NewJob(fmt.Sprintf("command %s", r.target), display, func(job *jobsystem.Job) (jobsystem.Outcome, error) {
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

		cont := jobsystem.NewJobWithID(job.ID, r.target.String()+" (run)", display, func(*jobsystem.Job) (jobsystem.Outcome, error) {
			return r.run(ctx)
		})
		return jobsystem.Defer(depJobIDs, cont), nil
	})
}

func (r *CommandRule) run(ctx *anubis.JobContext) (jobsystem.Outcome, error) {
	dir := filepath.Join(ctx.Anubis.RootDir(), r.target.DirRelativePath())
	cmd := exec.Command(r.cfg.Argv[0], r.cfg.Argv[1:]...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return jobsystem.Failure(anubiserr.New(anubiserr.KindRule,
			"command %s exited %d: %s", r.target, exitCode, out.String())), nil
	}

	return jobsystem.Success(CommandArtifact{Stdout: out.String(), ExitCode: 0}), nil
}
