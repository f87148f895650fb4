package admin_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/trustboard/cmd/admin"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/dbschema"
	"github.com/stokaro/trustboard/store"
)

func execute(dbURL string, args ...string) (string, error) {
	cmd := admin.NewAdminCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--db-url", dbURL, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPromoteAndDemote(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	dbURL := filepath.Join(c.TempDir(), "admin.db")

	_, err := execute(dbURL, "promote", "alice")
	c.Assert(err, qt.ErrorMatches, "failed to promote alice: .*")

	conn, err := dbschema.ConnectToDatabase(dbURL)
	c.Assert(err, qt.IsNil)
	defer conn.Close()
	st := store.New(conn, clock.Real())
	_, err = st.CreateUser(ctx, "alice", "alice@example.com", "hash", false)
	c.Assert(err, qt.IsNil)

	out, err := execute(dbURL, "promote", "alice")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "alice: is_admin=true\n")

	u, found, err := st.UserByUsername(ctx, "alice")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)
	c.Assert(u.IsAdmin, qt.IsTrue)

	_, err = execute(dbURL, "demote", "alice")
	c.Assert(err, qt.IsNil)
	u, _, err = st.UserByUsername(ctx, "alice")
	c.Assert(err, qt.IsNil)
	c.Assert(u.IsAdmin, qt.IsFalse)
}
