package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oskar456/dzonegit/internal/deploy"
	"github.com/oskar456/dzonegit/internal/filtering"
	"github.com/oskar456/dzonegit/internal/hookerr"
	"github.com/oskar456/dzonegit/internal/hooks"
	"github.com/oskar456/dzonegit/internal/journal"
)

func (e *env) validator() *hooks.Validator {
	return &hooks.Validator{
		Repo:     e.repo,
		Compiler: newCompiler(e.cfg.Validation, e.logger),
		Config:   e.cfg,
		Logger:   e.logger,
		Now:      time.Now,
	}
}

func newCmdPreCommit(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pre-commit",
		Short: "Validate staged zone changes (pre-commit hook)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := g.load(ctx)
			if err != nil {
				return err
			}
			against, err := e.repo.Head(ctx)
			if err != nil {
				return err
			}
			v := e.validator()
			if v.WorkDir, err = e.repo.TopLevel(ctx); err != nil {
				return err
			}
			return v.PreCommit(ctx, against)
		},
	}
}

func newCmdUpdate(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update <ref> <oldrev> <newrev>",
		Short: "Validate a pushed ref update (update hook)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				return hookerr.Configuration("Usage: " + cmd.UseLine())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv("GIT_DIR") == "" {
				return hookerr.Configuration("Don't run this hook from command line")
			}
			ctx := cmd.Context()
			e, err := g.load(ctx)
			if err != nil {
				return err
			}
			return e.validator().Update(ctx, args[0], args[1], args[2])
		},
	}
}

func newCmdPreReceive(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pre-receive",
		Short: "Validate all ref updates read from standard input (pre-receive hook)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := g.load(ctx)
			if err != nil {
				return err
			}
			return e.validator().PreReceive(ctx, cmd.InOrStdin())
		},
	}
}

func newCmdPostReceive(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "post-receive",
		Short: "Deploy the accepted branch (post-receive hook)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := g.load(ctx)
			if err != nil {
				return err
			}
			dc := e.cfg.Deploy
			policy, err := filtering.LoadPolicy(dc.ZoneWhitelist, dc.ZoneBlacklist, e.logger)
			if err != nil {
				return fmt.Errorf("failed to load zone lists: %w", err)
			}

			runner := deploy.NewShellRunner(e.logger)
			runner.Stdout = cmd.OutOrStdout()
			runner.Stderr = cmd.ErrOrStderr()
			d := &deploy.Deployer{
				Repo:   e.repo,
				Config: e.cfg,
				Runner: runner,
				Policy: policy,
				Logger: e.logger,
			}
			if dc.Journal != "" {
				j, err := journal.Open(dc.Journal)
				if err != nil {
					return err
				}
				defer j.Close()
				d.Journal = j
			}
			return d.PostReceive(ctx, cmd.InOrStdin())
		},
	}
}
