// Package sim is a simulated management endpoint whose systems, volumes and
// disks live in a SQLite state file. It serves the sim:// URI scheme.
package sim

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sigreer/blkdevctl/internal/lsm"
)

// DefaultPath is the default state file location
const DefaultPath = "/var/lib/blkdevctl/sim.db"

// Store wraps the SQLite state file
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the state file at path
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure state file: %w", err)
	}

	s := &Store{conn: conn, path: path}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the state file
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the state file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}

	migrations := []string{
		migrationV1,
	}

	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

const migrationV1 = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS systems (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    name TEXT NOT NULL,
    mode TEXT NOT NULL,
    capabilities TEXT NOT NULL DEFAULT ''
);

-- Volumes carry the simulated locate LED; disks are lit through the host
CREATE TABLE IF NOT EXISTS volumes (
    id TEXT NOT NULL,
    system_id TEXT NOT NULL REFERENCES systems(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    name TEXT NOT NULL,
    vpd83 TEXT NOT NULL DEFAULT '',
    sd_path TEXT NOT NULL DEFAULT '',
    led INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (system_id, id)
);

CREATE TABLE IF NOT EXISTS disks (
    id TEXT NOT NULL,
    system_id TEXT NOT NULL REFERENCES systems(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    name TEXT NOT NULL,
    vpd83 TEXT NOT NULL DEFAULT '',
    sd_path TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (system_id, id)
);
`

// password returns the stored endpoint password; empty means none required.
func (s *Store) password(ctx context.Context) (string, error) {
	var pw string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = 'password'").Scan(&pw)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return pw, err
}

// Systems returns every system in seed order.
func (s *Store) Systems(ctx context.Context) ([]lsm.System, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, name, mode FROM systems ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to query systems: %w", err)
	}
	defer rows.Close()

	var systems []lsm.System
	for rows.Next() {
		var sys lsm.System
		var mode string
		if err := rows.Scan(&sys.ID, &sys.Name, &mode); err != nil {
			return nil, err
		}
		sys.Mode = lsm.ParseSystemMode(mode)
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

// Capabilities returns the capability set recorded for systemID.
func (s *Store) Capabilities(ctx context.Context, systemID string) (lsm.CapabilitySet, error) {
	var caps string
	err := s.conn.QueryRowContext(ctx, "SELECT capabilities FROM systems WHERE id = ?", systemID).Scan(&caps)
	if err == sql.ErrNoRows {
		return nil, lsm.Errorf(lsm.ErrNotFoundSystem, "system %s", systemID)
	}
	if err != nil {
		return nil, err
	}
	return parseCapabilities(caps), nil
}

// Volumes returns the volumes of systemID in seed order.
func (s *Store) Volumes(ctx context.Context, systemID string) ([]lsm.Volume, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, name, vpd83, sd_path FROM volumes WHERE system_id = ? ORDER BY seq", systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query volumes: %w", err)
	}
	defer rows.Close()

	var vols []lsm.Volume
	for rows.Next() {
		v := lsm.Volume{SystemID: systemID}
		if err := rows.Scan(&v.ID, &v.Name, &v.VPD83, &v.SDPath); err != nil {
			return nil, err
		}
		vols = append(vols, v)
	}
	return vols, rows.Err()
}

// Disks returns the disks of systemID in seed order.
func (s *Store) Disks(ctx context.Context, systemID string) ([]lsm.Disk, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, name, vpd83, sd_path FROM disks WHERE system_id = ? ORDER BY seq", systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query disks: %w", err)
	}
	defer rows.Close()

	var disks []lsm.Disk
	for rows.Next() {
		d := lsm.Disk{SystemID: systemID}
		if err := rows.Scan(&d.ID, &d.Name, &d.VPD83, &d.SDPath); err != nil {
			return nil, err
		}
		disks = append(disks, d)
	}
	return disks, rows.Err()
}

// SetVolumeLED records the locate LED state of a volume.
func (s *Store) SetVolumeLED(ctx context.Context, vol lsm.Volume, on bool) error {
	led := 0
	if on {
		led = 1
	}
	res, err := s.conn.ExecContext(ctx,
		"UPDATE volumes SET led = ? WHERE system_id = ? AND id = ?", led, vol.SystemID, vol.ID)
	if err != nil {
		return fmt.Errorf("failed to update volume led: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lsm.Errorf(lsm.ErrNotFoundVolume, "volume %s/%s", vol.SystemID, vol.ID)
	}
	return nil
}

// VolumeLED returns the locate LED state of a volume.
func (s *Store) VolumeLED(ctx context.Context, vol lsm.Volume) (lsm.LEDStatus, error) {
	var led int
	err := s.conn.QueryRowContext(ctx,
		"SELECT led FROM volumes WHERE system_id = ? AND id = ?", vol.SystemID, vol.ID).Scan(&led)
	if err == sql.ErrNoRows {
		return lsm.LEDUnknown, lsm.Errorf(lsm.ErrNotFoundVolume, "volume %s/%s", vol.SystemID, vol.ID)
	}
	if err != nil {
		return lsm.LEDUnknown, err
	}
	if led != 0 {
		return lsm.LEDOn, nil
	}
	return lsm.LEDOff, nil
}

func parseCapabilities(s string) lsm.CapabilitySet {
	set := lsm.CapabilitySet{}
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[lsm.Capability(name)] = true
		}
	}
	return set
}
