package migrator_test

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/trustboard/core/platform"
	"github.com/stokaro/trustboard/dbschema"
	"github.com/stokaro/trustboard/migration/migrations"
	"github.com/stokaro/trustboard/migration/migrator"
)

func versions(ms []*migrator.Migration) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.Version
	}
	return out
}

// communityFS lays out migrations the way the embedded schema does: one
// directory per dialect.
func communityFS() fstest.MapFS {
	return fstest.MapFS{
		"sqlite/0000000001_create_posts.up.sql":     {Data: []byte("CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL);")},
		"sqlite/0000000001_create_posts.down.sql":   {Data: []byte("DROP TABLE posts;")},
		"sqlite/0000000003_create_reviews.up.sql":   {Data: []byte("CREATE TABLE company_reviews (id INTEGER PRIMARY KEY AUTOINCREMENT);")},
		"sqlite/0000000003_create_reviews.down.sql": {Data: []byte("DROP TABLE company_reviews;")},
		"sqlite/README.md":                          {Data: []byte("# sqlite schema")},
		"sqlite/archive/0000000009_old.up.sql":      {Data: []byte("SELECT 1;")},
		"postgres/0000000001_create_posts.up.sql":   {Data: []byte("CREATE TABLE posts (id SERIAL PRIMARY KEY, title TEXT NOT NULL);")},
		"postgres/0000000001_create_posts.down.sql": {Data: []byte("DROP TABLE posts;")},
	}
}

func hideColumn() *migrator.Migration {
	return migrator.AddColumnsMigration(2, "Add Hidden Flag", migrator.Column{
		Table:   "posts",
		Name:    "is_hidden",
		Default: "BOOLEAN NOT NULL DEFAULT FALSE",
	})
}

func TestRegisteredMigrationProvider_Order(t *testing.T) {
	c := qt.New(t)

	p := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Version: 6, Description: "Add Listing Indexes"},
		&migrator.Migration{Version: 1, Description: "Create Users"},
	)
	p.Register(&migrator.Migration{Version: 5, Description: "Add Moderation Columns"})
	p.Register(&migrator.Migration{Version: 2, Description: "Create Posts"})

	c.Assert(versions(p.Migrations()), qt.DeepEquals, []int{1, 2, 5, 6})
	c.Assert(migrator.NewRegisteredMigrationProvider().Migrations(), qt.HasLen, 0)
}

func TestNewFSMigrationProvider(t *testing.T) {
	c := qt.New(t)

	sub, err := fs.Sub(communityFS(), "sqlite")
	c.Assert(err, qt.IsNil)
	p, err := migrator.NewFSMigrationProvider(sub)
	c.Assert(err, qt.IsNil)

	// README and the archive directory are skipped
	ms := p.Migrations()
	c.Assert(versions(ms), qt.DeepEquals, []int{1, 3})
	c.Assert(ms[0].Description, qt.Equals, "Create Posts")
	c.Assert(ms[1].Description, qt.Equals, "Create Reviews")
}

func TestNewFSMigrationProvider_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fs.FS
		err  string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"0000000001_create_posts.up.sql": {Data: []byte("CREATE TABLE posts (id INTEGER);")},
			},
			err: `incomplete migrations found \(missing up or down files\): \[1\]`,
		},
		{
			name: "one version two names",
			fsys: fstest.MapFS{
				"0000000002_create_comments.up.sql": {Data: []byte("CREATE TABLE post_comments (id INTEGER);")},
				"0000000002_create_replies.down.sql": {Data: []byte("DROP TABLE post_comments;")},
			},
			err: `migration 2 has files named "Create Comments" and "Create Replies"`,
		},
		{
			name: "unreadable",
			fsys: errorFS{},
			err:  "failed to read migrations: .*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			p, err := migrator.NewFSMigrationProvider(tt.fsys)
			c.Assert(err, qt.ErrorMatches, tt.err)
			c.Assert(p, qt.IsNil)
		})
	}
}

func TestNewDialectProvider(t *testing.T) {
	c := qt.New(t)

	p, err := migrator.NewDialectProvider(communityFS(), platform.SQLite, hideColumn())
	c.Assert(err, qt.IsNil)
	c.Assert(versions(p.Migrations()), qt.DeepEquals, []int{1, 2, 3})
	c.Assert(p.Migrations()[1].Description, qt.Equals, "Add Hidden Flag")

	p, err = migrator.NewDialectProvider(communityFS(), platform.Postgres)
	c.Assert(err, qt.IsNil)
	c.Assert(versions(p.Migrations()), qt.DeepEquals, []int{1})

	clash := &migrator.Migration{Version: 3, Description: "Add Report Count"}
	_, err = migrator.NewDialectProvider(communityFS(), platform.SQLite, clash)
	c.Assert(err, qt.ErrorMatches, `duplicate migration version 3: "Create Reviews" and "Add Report Count"`)

	_, err = migrator.NewDialectProvider(communityFS(), platform.MySQL)
	c.Assert(err, qt.ErrorMatches, "failed to load mysql migrations: .*")
}

func TestNewDialectProvider_AppliesCodeMigration(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	conn := newTestConn(c)

	p, err := migrator.NewDialectProvider(communityFS(), platform.SQLite, hideColumn())
	c.Assert(err, qt.IsNil)
	m := migrator.NewMigrator(conn, p).WithLogger(quietLogger())
	c.Assert(m.MigrateUp(ctx), qt.IsNil)

	_, err = dbschema.Run(ctx, conn, "INSERT INTO posts (title, is_hidden) VALUES (?, ?)", "공지", true)
	c.Assert(err, qt.IsNil)
	c.Assert(tableExists(c, conn, "company_reviews"), qt.IsTrue)
}

func TestEmbeddedSchema(t *testing.T) {
	for _, dialect := range []string{platform.SQLite, platform.Postgres, platform.MySQL} {
		t.Run(dialect, func(t *testing.T) {
			c := qt.New(t)

			sqlOnly, err := migrations.FS(dialect)
			c.Assert(err, qt.IsNil)
			fsProvider, err := migrator.NewFSMigrationProvider(sqlOnly)
			c.Assert(err, qt.IsNil)
			c.Assert(versions(fsProvider.Migrations()), qt.DeepEquals, []int{1, 2, 3, 4, 6})

			full, err := migrations.Provider(dialect)
			c.Assert(err, qt.IsNil)
			c.Assert(versions(full.Migrations()), qt.DeepEquals, []int{1, 2, 3, 4, 5, 6})
			c.Assert(full.Migrations()[4].Description, qt.Equals, "Add Moderation Columns")
		})
	}
}

type errorFS struct{}

func (errorFS) Open(string) (fs.File, error) {
	return nil, fs.ErrNotExist
}
