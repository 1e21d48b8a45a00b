package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oskar456/dzonegit/internal/compiler"
	"github.com/oskar456/dzonegit/internal/config"
	"github.com/oskar456/dzonegit/internal/git"
	"github.com/oskar456/dzonegit/internal/logging"
)

// globalFlags override the logging settings from git configuration.
type globalFlags struct {
	logLevel  string
	logFormat string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides dzonegit.loglevel")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format (text|json), overrides dzonegit.logformat")
}

// env is what a subcommand needs to run against the current repository.
type env struct {
	repo   *git.Repository
	cfg    *config.Config
	logger *slog.Logger
}

// load reads the repository configuration and sets up logging from it.
func (g *globalFlags) load(ctx context.Context) (*env, error) {
	repo := git.New("", nil)
	cfg, err := config.Load(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.StructuredFormat = g.logFormat
		cfg.Logging.Structured = false
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger := g.configureLogging(cfg.Logging)
	repo.Logger = logger
	return &env{repo: repo, cfg: cfg, logger: logger}, nil
}

func (g *globalFlags) configureLogging(lc config.LoggingConfig) *slog.Logger {
	return logging.Configure(logging.Config{
		Level:            lc.Level,
		Structured:       lc.Structured,
		StructuredFormat: lc.StructuredFormat,
		IncludePID:       lc.IncludePID,
		ExtraFields:      lc.ExtraFields,
		File:             lc.File,
	})
}

// newCompiler returns the compiler selected by dzonegit.compiler.
func newCompiler(cfg config.ValidationConfig, logger *slog.Logger) compiler.Compiler {
	if cfg.UsesBuiltinCompiler() {
		return compiler.Builtin{}
	}
	return &compiler.Named{Path: cfg.Compiler, Logger: logger}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "dzonegit",
		Short: "Git hooks for managing DNS zone files",
		Long: "dzonegit checks that zone files committed to git compile and that their " +
			"serial is increased whenever their content changes, and deploys accepted " +
			"zones on the server side.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.register(cmd.PersistentFlags())

	cmd.AddCommand(newCmdPreCommit(g))
	cmd.AddCommand(newCmdUpdate(g))
	cmd.AddCommand(newCmdPreReceive(g))
	cmd.AddCommand(newCmdPostReceive(g))
	cmd.AddCommand(newCmdSmudgeSerial())
	cmd.AddCommand(newCmdCompile(g))
	cmd.AddCommand(newCmdHistory(g))
	cmd.AddCommand(newCmdVersion())
	return cmd
}
