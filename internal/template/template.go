// Package template renders DNS server configuration from the deployed zones.
//
// A definition file (YAML, or JSON since JSON is valid YAML) holds a header,
// a per-zone item and a footer, each a text/template with the sprig function
// library. Every zone gets a free-form variable: its entry in zonevars, or
// defaultvar when it has none.
package template

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DatetimeLayout is how Datetime is formatted for templates.
const DatetimeLayout = time.RFC1123Z

// Definition is one parsed template definition file.
type Definition struct {
	Header     string            `yaml:"header"`
	Item       string            `yaml:"item"`
	Footer     string            `yaml:"footer"`
	DefaultVar string            `yaml:"defaultvar"`
	ZoneVars   map[string]string `yaml:"zonevars"`
}

// Zone is a deployed zone as templates see it.
type Zone struct {
	Name string
	// File is the absolute path of the zone file in the checkout.
	File string
	// RelFile is File relative to the checkout root.
	RelFile string
}

// ItemData is passed to the item template once per zone.
type ItemData struct {
	Name     string
	File     string
	RelFile  string
	Var      string
	Datetime string
	Repo     string
}

// PageData is passed to the header and footer templates.
type PageData struct {
	Datetime string
	Repo     string
	Zones    []ItemData
}

// Job renders one definition file into one output file.
type Job struct {
	Definition string
	Output     string
}

// Load reads and parses a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a definition from YAML or JSON bytes.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse template definition: %w", err)
	}
	if def.Item == "" && def.Header == "" && def.Footer == "" {
		return nil, fmt.Errorf("template definition has no header, item or footer")
	}
	return &def, nil
}

// Render returns the configuration text for zones.
func (d *Definition) Render(zones []Zone, repo string, now time.Time) ([]byte, error) {
	header, err := parse("header", d.Header)
	if err != nil {
		return nil, err
	}
	item, err := parse("item", d.Item)
	if err != nil {
		return nil, err
	}
	footer, err := parse("footer", d.Footer)
	if err != nil {
		return nil, err
	}

	datetime := now.Format(DatetimeLayout)
	page := PageData{Datetime: datetime, Repo: repo, Zones: make([]ItemData, 0, len(zones))}
	for _, z := range zones {
		it := ItemData{
			Name:     z.Name,
			File:     z.File,
			RelFile:  z.RelFile,
			Datetime: datetime,
			Repo:     repo,
		}
		if it.Var, err = d.zoneVar(it); err != nil {
			return nil, err
		}
		page.Zones = append(page.Zones, it)
	}

	var buf bytes.Buffer
	if err := header.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("rendering header: %w", err)
	}
	for _, it := range page.Zones {
		if err := item.Execute(&buf, it); err != nil {
			return nil, fmt.Errorf("rendering item for zone %s: %w", it.Name, err)
		}
	}
	if err := footer.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("rendering footer: %w", err)
	}
	return buf.Bytes(), nil
}

// zoneVar picks the zone's variable and expands it against the item data.
func (d *Definition) zoneVar(it ItemData) (string, error) {
	raw, ok := d.ZoneVars[it.Name]
	if !ok {
		raw = d.DefaultVar
	}
	if !strings.Contains(raw, "{{") {
		return raw, nil
	}
	t, err := parse("zonevar "+it.Name, raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, it); err != nil {
		return "", fmt.Errorf("rendering variable for zone %s: %w", it.Name, err)
	}
	return buf.String(), nil
}

func parse(name, text string) (*texttemplate.Template, error) {
	t, err := texttemplate.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return t, nil
}

// RenderAll renders every job concurrently. All outputs are written
// atomically; the first error is returned.
func RenderAll(ctx context.Context, jobs []Job, zones []Zone, repo string, now time.Time) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			def, err := Load(job.Definition)
			if err != nil {
				return err
			}
			out, err := def.Render(zones, repo, now)
			if err != nil {
				return fmt.Errorf("%s: %w", job.Definition, err)
			}
			return WriteFileAtomic(job.Output, out, 0o644)
		})
	}
	return g.Wait()
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
