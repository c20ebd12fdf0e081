package repositories_test

import (
	"context"
	_ "embed"
	"io"
	"testing"

	"github.com/myrjola/misterio/internal/sqlite"
	"github.com/myrjola/misterio/internal/testhelpers"
)

//go:embed testdata/fixtures.sql
var testFixtures string

const fixtureUserID = "fixture-user"

// newTestDB creates a new migrated in-memory database with the test fixtures.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := sqlite.NewDatabase(ctx, ":memory:", testhelpers.NewLogger(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, testFixtures); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Error(err)
		}
	})
	return db
}
