package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"code.cloudfoundry.org/anubis"
	"code.cloudfoundry.org/anubis/config"
	"code.cloudfoundry.org/anubis/fshash"
	"code.cloudfoundry.org/anubis/internal/anubiserr"
	"code.cloudfoundry.org/anubis/internal/ui"
	"code.cloudfoundry.org/anubis/jobsystem"
	"code.cloudfoundry.org/anubis/rules"
)

var (
	flagMode      string
	flagToolchain string
	flagFast      bool
)

// buildCmd schedules one or more targets (or "//dir/..." patterns) and runs
// them to completion, the way the teacher's build subcommands each drive
// one model-to-Dockerfile pipeline to completion.
var buildCmd = &cobra.Command{
	Use:   "build <target|pattern>...",
	Short: "Build one or more targets",
	Long: `
Resolves each argument as a target label ("//dir:name", or ":name" taken
relative to the repository root) or a pattern ("//dir/...") and schedules
the corresponding rules, then runs the job graph to completion.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	RootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&flagMode, "mode", "m", "", "Mode target label (e.g. //modes:linux-amd64)")
	buildCmd.Flags().StringVarP(&flagToolchain, "toolchain", "t", "", "Toolchain target label, resolved under --mode")
	buildCmd.Flags().BoolVar(&flagFast, "fast", false, "Use mtime+size hashing instead of content hashing")

	viper.BindPFlag("mode", buildCmd.Flags().Lookup("mode"))
	viper.BindPFlag("toolchain", buildCmd.Flags().Lookup("toolchain"))
}

func runBuild(cmd *cobra.Command, args []string) error {
	hashMode := fshash.Full
	if flagFast {
		hashMode = fshash.Fast
	}

	hasher, err := fshash.New(hashMode)
	if err != nil {
		return err
	}
	defer hasher.Close()

	jobs := jobsystem.New()
	orch, err := anubis.New(rootDir, config.NewReader(), jobs, hasher, rules.RegisterAll())
	if err != nil {
		return err
	}

	ctx := &anubis.JobContext{Anubis: orch, Jobs: jobs}

	if flagMode != "" {
		modeTarget, err := anubis.ParseTarget(flagMode)
		if err != nil {
			return err
		}
		mode, err := orch.GetMode(modeTarget)
		if err != nil {
			return err
		}
		ctx.Mode = mode

		if flagToolchain != "" {
			toolchainTarget, err := anubis.ParseTarget(flagToolchain)
			if err != nil {
				return err
			}
			toolchain, err := orch.GetToolchain(mode, toolchainTarget)
			if err != nil {
				return err
			}
			ctx.Toolchain = toolchain
		}
	}

	targets, err := resolveArgs(orch, args)
	if err != nil {
		return err
	}

	for _, target := range targets {
		if _, err := orch.BuildRule(target, ctx); err != nil {
			return err
		}
	}

	progressCh := make(chan jobsystem.ProgressEvent, 256)
	renderer := ui.NewRenderer()
	done := make(chan struct{})
	go func() {
		renderer.Run(progressCh)
		close(done)
	}()

	runErr := jobs.RunToCompletion(workers, progressCh)
	close(progressCh)
	<-done
	renderer.Wait()

	if runErr != nil {
		return runErr
	}
	fmt.Printf("anubis: built %d target(s)\n", len(targets))
	return nil
}

func resolveArgs(lookup anubis.RuleTypeNameLookup, args []string) ([]anubis.Target, error) {
	var out []anubis.Target
	for _, arg := range args {
		if anubis.IsPattern(arg) {
			pattern, err := anubis.ParsePattern(arg)
			if err != nil {
				return nil, err
			}
			expanded, err := pattern.Expand(rootDir, lookup)
			if err != nil {
				return nil, anubiserr.Wrap(anubiserr.KindTarget, err, "expanding pattern %s", arg)
			}
			out = append(out, expanded...)
			continue
		}
		target, err := anubis.ParseTarget(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, target.Resolve(""))
	}
	return out, nil
}
