package migrations

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Migration is one migration file on disk.
type Migration struct {
	Version   string
	Name      string
	Scope     Scope
	Direction string // "up" or "down"
	FilePath  string
}

// String returns the migration file identifier.
func (m Migration) String() string {
	return fmt.Sprintf("%s_%s.%s.sql", m.Version, m.Name, m.Direction)
}

// Load reads the migrations of one direction from dir, filtered by
// target and sorted by version. File names follow
// 000001_scan_jobs.up.sql; files that do not match are skipped.
func Load(dir string, target Target, direction string) ([]Migration, error) {
	suffix := fmt.Sprintf(".%s.sql", direction)

	var migrations []Migration
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, suffix) {
			return nil
		}

		base := strings.TrimSuffix(filepath.Base(path), suffix)
		parts := strings.SplitN(base, "_", 2)
		if len(parts) != 2 {
			return nil
		}

		version := parts[0]
		if !target.Includes(ScopeOf(version)) {
			return nil
		}

		migrations = append(migrations, Migration{
			Version:   version,
			Name:      parts[1],
			Scope:     ScopeOf(version),
			Direction: direction,
			FilePath:  path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Content reads the SQL of a migration file.
func Content(m Migration) ([]byte, error) {
	return os.ReadFile(m.FilePath)
}
