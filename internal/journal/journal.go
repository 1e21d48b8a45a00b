// Package journal keeps a SQLite record of post-receive deployments.
//
// Each deployment row stores the pushed ref, the old and new revisions and
// how long the deployment ran. The zones that were part of it, and whether
// they were reloaded, are stored in deployment_zones. The schema is managed
// with embedded migrations applied on Open.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Deployment is one post-receive run for one ref update.
type Deployment struct {
	ID       int64
	Ref      string
	OldRev   string
	NewRev   string
	Started  time.Time
	Finished time.Time
	// Failures counts commands that exited unsuccessfully.
	Failures int
}

// Zone is one zone that was present in a deployment.
type Zone struct {
	Name     string
	File     string
	Reloaded bool
}

// Journal wraps the SQLite connection.
type Journal struct {
	conn *sql.DB
	mu   sync.Mutex // serializes writers
}

// Open opens or creates the journal at path and migrates it to the latest
// schema.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate journal %s: %w", path, err)
	}
	return &Journal{conn: conn}, nil
}

func migrateUp(conn *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	drv, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return err
	}
	// m.Close would close conn as well; only the source is released.
	defer src.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Record stores a deployment and its zones and returns the new deployment id.
func (j *Journal) Record(ctx context.Context, d Deployment, zones []Zone) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO deployments (ref, old_rev, new_rev, started_at, finished_at, failures)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.Ref, d.OldRev, d.NewRev, d.Started.Unix(), d.Finished.Unix(), d.Failures)
	if err != nil {
		return 0, fmt.Errorf("insert deployment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert deployment: %w", err)
	}

	if len(zones) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO deployment_zones (deployment_id, zone, file, reloaded)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare zone insert: %w", err)
		}
		defer stmt.Close()

		for _, z := range zones {
			if _, err := stmt.ExecContext(ctx, id, z.Name, z.File, z.Reloaded); err != nil {
				return 0, fmt.Errorf("insert zone %s: %w", z.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// Recent returns up to n deployments, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Deployment, error) {
	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, ref, old_rev, new_rev, started_at, finished_at, failures
		FROM deployments
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		var d Deployment
		var started, finished int64
		if err := rows.Scan(&d.ID, &d.Ref, &d.OldRev, &d.NewRev, &started, &finished, &d.Failures); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		d.Started = time.Unix(started, 0)
		d.Finished = time.Unix(finished, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Zones returns the zones recorded for deployment id, sorted by name.
func (j *Journal) Zones(ctx context.Context, id int64) ([]Zone, error) {
	rows, err := j.conn.QueryContext(ctx, `
		SELECT zone, file, reloaded
		FROM deployment_zones
		WHERE deployment_id = ?
		ORDER BY zone
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var out []Zone
	for rows.Next() {
		var z Zone
		if err := rows.Scan(&z.Name, &z.File, &z.Reloaded); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}
