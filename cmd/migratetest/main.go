package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/sqlite"
	"github.com/myrjola/misterio/internal/testhelpers"
)

// Migrates a copy of the production database to the current schema and checks that the data survived.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("MISTERIO_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "MISTERIO_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Fetch the number of users and found collectibles as a simple smoke test.
	var counts struct {
		Users int `db:"users"`
		Items int `db:"items"`
	}
	if err = db.ReadOnly.GetContext(ctx, &counts, `SELECT
    (SELECT COUNT(*) FROM users)           AS users,
    (SELECT COUNT(*) FROM inventory_items) AS items`); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error fetching counts", errors.SlogError(err))
		os.Exit(1)
	}
	if counts.Users == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no users found, something is likely wrong")
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "row counts",
		slog.Int("users", counts.Users), slog.Int("inventory_items", counts.Items))

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	_ = db.Close()
	os.Exit(0)
}
