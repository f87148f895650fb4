package migrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var migrationFileRe = regexp.MustCompile(`^(\d{10})_([a-z0-9_]+)\.(up|down)\.sql$`)

// MigrationFile is the parsed form of a migration file name such as
// 0000000001_create_users.up.sql
type MigrationFile struct {
	Version   int
	Name      string
	Direction string
}

// ParseMigrationFileName parses a migration file name. The name part is
// turned into a human readable title ("create_users" becomes "Create Users").
func ParseMigrationFileName(filename string) (*MigrationFile, error) {
	matches := migrationFileRe.FindStringSubmatch(filename)
	if matches == nil {
		return nil, fmt.Errorf("invalid migration file name: %s", filename)
	}

	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid migration version in %s: %w", filename, err)
	}

	title := cases.Title(language.English).String(strings.ReplaceAll(matches[2], "_", " "))

	return &MigrationFile{
		Version:   version,
		Name:      title,
		Direction: matches[3],
	}, nil
}

// MigrationFileName builds the file name of a migration, the inverse of
// ParseMigrationFileName. name must already be in file name form.
func MigrationFileName(version int, name, direction string) string {
	return fmt.Sprintf("%010d_%s.%s.sql", version, name, direction)
}
