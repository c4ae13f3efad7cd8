package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	version string

	flagRootDir string
	flagWorkers int
	flagVerbose bool

	rootDir string
	workers int
)

// RootCmd is the base command. Persistent flags are bound the way the
// teacher's root.go binds its own: cobra for the tree, viper layered
// underneath for environment and config-file overrides.
var RootCmd = &cobra.Command{
	Use:   "anubis",
	Short: "A language-agnostic build orchestrator core",
	Long: `
Anubis schedules build rules declared across a directory tree into a
dependency-ordered job graph, caching filesystem hashes and resolved
configuration so repeated builds only redo what changed.
`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateBasicFlags()
	},
}

// Execute runs the command tree. Called once from cmd/anubis/main.go.
func Execute(v string) error {
	version = v
	return RootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.anubis.yaml)")

	RootCmd.PersistentFlags().StringP(
		"root-dir",
		"C",
		".",
		"Repository root directory containing ANUBIS files.",
	)

	RootCmd.PersistentFlags().IntP(
		"workers",
		"w",
		runtime.NumCPU(),
		"Number of scheduler worker goroutines.",
	)

	RootCmd.PersistentFlags().BoolP(
		"verbose",
		"V",
		false,
		"Verbose output flag (job-start lines are logged whether or not it is set).",
	)

	viper.BindPFlags(RootCmd.PersistentFlags())
}

// initConfig reads in config file and ENV variables if set, mirroring the
// teacher's own initConfig/initViper split, collapsed to the single global
// viper instance since Anubis has no per-subcommand viper trees.
func initConfig() {
	// Mirrors the teacher's app/fissile.go loading a developer-local .env
	// before viper reads the environment; absence is not an error.
	_ = godotenv.Load()

	viper.SetEnvPrefix("ANUBIS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".anubis")
		viper.AddConfigPath("$HOME")
	}
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func validateBasicFlags() error {
	flagRootDir = viper.GetString("root-dir")
	flagWorkers = viper.GetInt("workers")
	flagVerbose = viper.GetBool("verbose")

	abs, err := filepath.Abs(flagRootDir)
	if err != nil {
		return fmt.Errorf("resolving root dir %s: %w", flagRootDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("root dir %s is not a directory", abs)
	}
	rootDir = abs

	workers = flagWorkers
	if workers <= 0 {
		workers = 1
	}

	return nil
}
