// Package generator creates skeleton migration files for every supported
// dialect, numbered after the newest migration already present.
package generator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/stokaro/trustboard/core/platform"
	"github.com/stokaro/trustboard/migration/migrator"
)

// Dialects are the subdirectories a migration is generated into.
var Dialects = []string{platform.SQLite, platform.Postgres, platform.MySQL}

var nameRe = regexp.MustCompile(`[^a-z0-9]+`)

// Options controls NewMigration.
type Options struct {
	// Dir holds one subdirectory per dialect.
	Dir string
	// Name describes the migration, for example "add company tags".
	Name string
	// MinVersion is the lowest version the new migration may take. Use it
	// to step over versions registered in code rather than as files.
	MinVersion int
}

// MigrationFiles are the files written for one dialect.
type MigrationFiles struct {
	Dialect  string
	UpFile   string
	DownFile string
}

// Result describes a generated migration.
type Result struct {
	Version int
	Files   []MigrationFiles
}

// NewMigration writes empty up and down files for each dialect.
func NewMigration(opts Options) (*Result, error) {
	name := FileName(opts.Name)
	if name == "" {
		return nil, errors.New("migration name is required")
	}
	if opts.Dir == "" {
		return nil, errors.New("migration directory is required")
	}

	latest, err := LatestVersion(opts.Dir)
	if err != nil {
		return nil, err
	}
	version := max(latest+1, opts.MinVersion, 1)

	res := &Result{Version: version}
	for _, dialect := range Dialects {
		files, err := createMigrationFiles(filepath.Join(opts.Dir, dialect), dialect, version, name)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, *files)
	}
	return res, nil
}

// FileName turns a description into the name part of a migration file.
func FileName(name string) string {
	return strings.Trim(nameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// LatestVersion returns the highest version found in any dialect directory,
// or 0 when there is none.
func LatestVersion(dir string) (int, error) {
	latest := 0
	for _, dialect := range Dialects {
		entries, err := os.ReadDir(filepath.Join(dir, dialect))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read migration directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			mf, err := migrator.ParseMigrationFileName(e.Name())
			if err != nil {
				continue
			}
			latest = max(latest, mf.Version)
		}
	}
	return latest, nil
}

func createMigrationFiles(outputDir, dialect string, version int, name string) (*MigrationFiles, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := &MigrationFiles{
		Dialect:  dialect,
		UpFile:   filepath.Join(outputDir, migrator.MigrationFileName(version, name, "up")),
		DownFile: filepath.Join(outputDir, migrator.MigrationFileName(version, name, "down")),
	}
	header := fmt.Sprintf("-- %s migration %d: %s\n", dialect, version, name)
	for path, body := range map[string]string{
		files.UpFile:   header + "-- Write the forward statements here.\n",
		files.DownFile: header + "-- Write the statements that undo the up migration here.\n",
	} {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration file: %w", err)
		}
		_, werr := f.WriteString(body)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return nil, fmt.Errorf("failed to write migration file %s: %w", path, werr)
		}
	}
	return files, nil
}
