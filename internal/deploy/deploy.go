// Package deploy implements the post-receive side of dzonegit: checking out
// the accepted branch, regenerating DNS server configuration and telling
// the server about changed zones.
package deploy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oskar456/dzonegit/internal/config"
	"github.com/oskar456/dzonegit/internal/filtering"
	"github.com/oskar456/dzonegit/internal/git"
	"github.com/oskar456/dzonegit/internal/journal"
	"github.com/oskar456/dzonegit/internal/template"
	"github.com/oskar456/dzonegit/internal/zone"
)

// Repository is the subset of git operations a deployment needs.
type Repository interface {
	GitDir(ctx context.Context) (string, error)
	Checkout(ctx context.Context, workTree, branch string) error
	AlteredFiles(ctx context.Context, against, filter, revision string) ([]string, error)
	FileContents(ctx context.Context, path, revision string) ([]byte, error)
}

// Recorder stores finished deployments.
type Recorder interface {
	Record(ctx context.Context, d journal.Deployment, zones []journal.Zone) (int64, error)
}

// Deployer runs deployments for one repository.
type Deployer struct {
	Repo   Repository
	Config *config.Config
	Runner Runner
	// Policy limits which zones are deployed. Nil allows all.
	Policy *filtering.Policy
	// Journal is optional.
	Journal Recorder
	Logger  *slog.Logger
	Now     func() time.Time
}

// Result summarizes one deployment.
type Result struct {
	// Zones found in the checkout, or only the reloaded ones when no
	// checkout path is configured.
	Zones []template.Zone
	// Reloaded lists zones the reload commands ran for.
	Reloaded []string
	// Failures counts commands that failed.
	Failures int
}

func (d *Deployer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deployer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// PostReceive reads ref updates from r and deploys the configured branch.
// Other refs and deletions are ignored.
func (d *Deployer) PostReceive(ctx context.Context, r io.Reader) error {
	updates, err := git.ReadRefUpdates(r)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.Ref != d.Config.Validation.Branch {
			d.logger().Debug("Ignoring ref", "ref", u.Ref, "branch", d.Config.Validation.Branch)
			continue
		}
		if u.Deleted() {
			d.logger().Warn("Branch deleted, nothing to deploy", "ref", u.Ref)
			continue
		}
		if _, err := d.Deploy(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// Deploy runs one deployment under the repository's deploy lock.
func (d *Deployer) Deploy(ctx context.Context, u git.RefUpdate) (*Result, error) {
	started := d.now()
	log := d.logger().With("ref", u.Ref, "old", u.Old, "new", u.New)

	gitDir, err := d.Repo.GitDir(ctx)
	if err != nil {
		return nil, err
	}
	lock, err := acquireLock(gitDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.release(); err != nil {
			log.Warn("Failed to release deploy lock", "error", err)
		}
	}()

	res := &Result{}
	cfg := d.Config.Deploy
	if cfg.CheckoutPath != "" {
		if err := d.Repo.Checkout(ctx, cfg.CheckoutPath, d.Config.Validation.Branch); err != nil {
			return nil, fmt.Errorf("checkout to %s failed: %w", cfg.CheckoutPath, err)
		}
		log.Info("Checked out", "path", cfg.CheckoutPath)

		if res.Zones, err = d.collectZones(cfg.CheckoutPath); err != nil {
			return nil, err
		}
		if err := d.renderTemplates(ctx, res.Zones, gitDir); err != nil {
			return nil, err
		}
	}

	for _, cmd := range cfg.ReconfigCommands {
		log.Info("Running reconfig command", "command", cmd)
		if err := d.Runner.Run(ctx, cmd); err != nil {
			log.Error("Reconfig command failed", "command", cmd, "error", err)
			res.Failures++
		}
	}

	if err := d.reloadZones(ctx, u, res); err != nil {
		return nil, err
	}

	if d.Journal != nil {
		d.record(ctx, u, started, res)
	}
	log.Info("Deployment finished", "zones", len(res.Zones), "reloaded", len(res.Reloaded), "failures", res.Failures)
	return res, nil
}

// collectZones resolves every zone file in the checkout. Files whose name
// cannot be resolved, blocked zones and duplicates are skipped with a
// warning.
func (d *Deployer) collectZones(root string) ([]template.Zone, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	files, err := zone.Discover(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones in %s: %w", root, err)
	}

	seen := make(map[string]string, len(files))
	zones := make([]template.Zone, 0, len(files))
	for _, rel := range files {
		path := filepath.Join(abs, filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		name, err := zone.Name(rel, data, d.Config.Validation.AllowFancyNames)
		if err != nil {
			d.logger().Warn("Skipping zone file", "file", rel, "error", err)
			continue
		}
		if !d.Policy.Allowed(name) {
			continue
		}
		if prev, dup := seen[name]; dup {
			d.logger().Warn("Duplicate zone, skipping", "zone", name, "file", rel, "first", prev)
			continue
		}
		seen[name] = rel
		zones = append(zones, template.Zone{Name: name, File: path, RelFile: rel})
	}
	return zones, nil
}

func (d *Deployer) renderTemplates(ctx context.Context, zones []template.Zone, repo string) error {
	tmpls := d.Config.Deploy.Templates
	if len(tmpls) == 0 {
		return nil
	}
	jobs := make([]template.Job, 0, len(tmpls))
	for _, t := range tmpls {
		jobs = append(jobs, template.Job{Definition: t.Template, Output: t.Output})
	}
	if err := template.RenderAll(ctx, jobs, zones, repo, d.now()); err != nil {
		return fmt.Errorf("failed to generate configuration: %w", err)
	}
	d.logger().Info("Configuration generated", "files", len(jobs))
	return nil
}

// reloadZones runs the reload commands for every zone file modified by the
// update. Added and deleted zones are handled by the reconfig commands.
func (d *Deployer) reloadZones(ctx context.Context, u git.RefUpdate, res *Result) error {
	cmds := d.Config.Deploy.ZoneReloadCommands
	if len(cmds) == 0 {
		return nil
	}
	files, err := d.Repo.AlteredFiles(ctx, u.Base(), git.FilterModified, u.New)
	if err != nil {
		return err
	}
	for _, f := range files {
		if !strings.HasSuffix(f, zone.Suffix) {
			continue
		}
		data, err := d.Repo.FileContents(ctx, f, u.New)
		if err != nil {
			return err
		}
		name, err := zone.Name(f, data, d.Config.Validation.AllowFancyNames)
		if err != nil {
			d.logger().Warn("Skipping zone reload", "file", f, "error", err)
			continue
		}
		if !d.Policy.Allowed(name) {
			continue
		}
		for _, cmd := range cmds {
			d.logger().Info("Reloading zone", "zone", name, "command", cmd)
			if err := d.Runner.Run(ctx, cmd, name); err != nil {
				d.logger().Error("Zone reload command failed", "zone", name, "command", cmd, "error", err)
				res.Failures++
			}
		}
		res.Reloaded = append(res.Reloaded, name)
		if !containsZone(res.Zones, name) {
			res.Zones = append(res.Zones, template.Zone{Name: name, RelFile: f})
		}
	}
	return nil
}

func containsZone(zones []template.Zone, name string) bool {
	for _, z := range zones {
		if z.Name == name {
			return true
		}
	}
	return false
}

// record writes the deployment to the journal. Journal errors are logged
// only; the deployment itself already happened.
func (d *Deployer) record(ctx context.Context, u git.RefUpdate, started time.Time, res *Result) {
	reloaded := make(map[string]bool, len(res.Reloaded))
	for _, name := range res.Reloaded {
		reloaded[name] = true
	}
	zones := make([]journal.Zone, 0, len(res.Zones))
	for _, z := range res.Zones {
		zones = append(zones, journal.Zone{Name: z.Name, File: z.RelFile, Reloaded: reloaded[z.Name]})
	}
	id, err := d.Journal.Record(ctx, journal.Deployment{
		Ref:      u.Ref,
		OldRev:   u.Old,
		NewRev:   u.New,
		Started:  started,
		Finished: d.now(),
		Failures: res.Failures,
	}, zones)
	if err != nil {
		d.logger().Error("Failed to record deployment", "error", err)
		return
	}
	d.logger().Debug("Deployment recorded", "id", id)
}
