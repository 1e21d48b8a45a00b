package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oskar456/dzonegit/internal/compiler"
	"github.com/oskar456/dzonegit/internal/config"
	"github.com/oskar456/dzonegit/internal/journal"
	"github.com/oskar456/dzonegit/internal/zone"
)

// newCmdSmudgeSerial returns the git filter that expands $UNIXTIME. Use it
// as filter.dzonegit.smudge in the checkout of the server.
func newCmdSmudgeSerial() *cobra.Command {
	return &cobra.Command{
		Use:   "smudge-serial",
		Short: "Replace $UNIXTIME with the current unix time (git smudge filter)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(compiler.UnixtimeDirective(data, time.Now()))
			return err
		},
	}
}

func newCmdCompile(g *globalFlags) *cobra.Command {
	var (
		name      string
		compilerF string
	)
	cmd := &cobra.Command{
		Use:   "compile <zonefile>",
		Short: "Compile a zone file and print its serial and content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := g.configureLogging(config.LoggingConfig{
				Level:            g.logLevel,
				Structured:       g.logFormat == "json",
				StructuredFormat: g.logFormat,
			})
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read zone: %w", err)
			}
			if name == "" {
				if name, err = zone.Name(path, data, false); err != nil {
					return err
				}
			}
			vc := config.ValidationConfig{Compiler: compilerF}
			if vc.Compiler == "" {
				vc.Compiler = config.DefaultCompiler
			}
			res, err := newCompiler(vc, logger).Compile(ctx, name, data, compiler.Options{CheckMissingDot: true})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ZONE: %s\n", name)
			if !res.Success {
				fmt.Fprint(out, res.Diagnostics)
				return fmt.Errorf("zone %s does not compile", name)
			}
			fmt.Fprintf(out, "SERIAL: %s\n", res.Serial)
			fmt.Fprintf(out, "HASH: %s\n", res.Hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "zone", "", "Zone name (default: derived from file name and $ORIGIN)")
	cmd.Flags().StringVar(&compilerF, "compiler", "", "named-compilezone path or \"builtin\"")
	return cmd
}

func newCmdHistory(g *globalFlags) *cobra.Command {
	var (
		limit int
		path  string
		zones bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deployments from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if path == "" {
				e, err := g.load(ctx)
				if err != nil {
					return err
				}
				path = e.cfg.Deploy.Journal
			}
			if path == "" {
				return fmt.Errorf("no journal configured, set %s", config.KeyJournal)
			}
			j, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer j.Close()

			deployments, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tREF\tREVISION\tDURATION\tFAILURES")
			for _, d := range deployments {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
					d.ID, d.Started.Format(time.RFC3339), d.Ref, shortRev(d.NewRev),
					d.Finished.Sub(d.Started), d.Failures)
				if !zones {
					continue
				}
				zs, err := j.Zones(ctx, d.ID)
				if err != nil {
					return err
				}
				for _, z := range zs {
					mark := ""
					if z.Reloaded {
						mark = " (reloaded)"
					}
					fmt.Fprintf(w, "\t\t%s%s\t%s\t\t\n", z.Name, mark, z.File)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of deployments to show")
	cmd.Flags().StringVar(&path, "journal", "", "Journal database (default: "+config.KeyJournal+")")
	cmd.Flags().BoolVar(&zones, "zones", false, "Also list the zones of each deployment")
	return cmd
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return strings.TrimSpace(rev)
}
