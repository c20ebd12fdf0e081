package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/random"
)

const targetSchemaName = "schema_target"

// migrate makes the database schema match schemaDefinition declaratively.
//
// The target schema is materialized in a temporary in-memory database and attached next to the live one.
// Comparing the two sqlite_schema tables tells which tables to drop, create or rebuild with the 12-step
// procedure https://www.sqlite.org/lang_altertable.html#otheralter. Indexes and triggers are synchronized
// afterwards.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrate(ctx context.Context, schemaDefinition string) (err error) {
	var (
		randomID     string
		dbNameLength uint = 20
	)
	if randomID, err = random.Letters(dbNameLength); err != nil {
		return errors.Wrap(err, "generate random ID")
	}
	targetDSN := fmt.Sprintf("file:%s?mode=memory&cache=shared", randomID)
	var target *sqlx.DB
	if target, err = sqlx.Open(driverName, targetDSN); err != nil {
		return errors.Wrap(err, "open schema target database")
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target database",
				errors.SlogError(closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "create schema target")
	}

	// PRAGMA foreign_keys and ATTACH have no effect inside a transaction, so the whole migration runs on one
	// dedicated connection.
	var conn *sqlx.Conn
	if conn, err = db.ReadWrite.Connx(ctx); err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer func() {
		_ = conn.Close()
	}()

	// Step 1: Disable foreign key validation temporarily.
	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	// Step 12: Re-enable foreign key validation.
	defer func() {
		if _, fkErr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, errors.Wrap(fkErr, "re-enable foreign key validation"))
		}
	}()

	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+targetSchemaName, targetDSN); err != nil {
		return errors.Wrap(err, "attach schema target database")
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE "+targetSchemaName); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach schema target database",
				errors.SlogError(detachErr))
		}
	}()

	// Step 2: Start transaction.
	var tx *sqlx.Tx
	if tx, err = conn.BeginTxx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction", errors.SlogError(rollbackErr))
		}
	}()

	// Steps 3-7.
	if err = db.migrateTables(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}
	// Step 8: Recreate indexes and triggers.
	for _, objectType := range []string{"index", "trigger"} {
		if err = db.migrateSchemaObjects(ctx, tx, objectType); err != nil {
			return errors.Wrap(err, "migrate schema objects", slog.String("type", objectType))
		}
	}

	// Step 10: Check foreign key constraints.
	var violations []string
	if err = tx.SelectContext(ctx, &violations, `SELECT "table" FROM pragma_foreign_key_check`); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if len(violations) > 0 {
		return errors.New("foreign key violations after migration", slog.Any("tables", violations))
	}

	// Step 11: Commit transaction from step 2.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

type schemaObject struct {
	Name string `db:"name"`
	SQL  string `db:"sql"`
}

func (db *Database) migrateTables(ctx context.Context, tx *sqlx.Tx) error {
	var (
		current, target []schemaObject
		err             error
	)
	if current, err = querySchemaObjects(ctx, tx, "main", "table"); err != nil {
		return errors.Wrap(err, "query current tables")
	}
	if target, err = querySchemaObjects(ctx, tx, targetSchemaName, "table"); err != nil {
		return errors.Wrap(err, "query target tables")
	}
	currentByName := byName(current)
	targetByName := byName(target)

	for _, table := range current {
		if _, ok := targetByName[table.Name]; ok {
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table.Name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table.Name)); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table.Name))
		}
	}

	for _, table := range target {
		existing, ok := currentByName[table.Name]
		switch {
		case !ok:
			db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", table.SQL))
			if _, err = tx.ExecContext(ctx, table.SQL); err != nil {
				return errors.Wrap(err, "create table", slog.String("table", table.Name))
			}
		case existing.SQL != table.SQL:
			if err = db.rebuildTable(ctx, tx, existing, table); err != nil {
				return errors.Wrap(err, "rebuild table", slog.String("table", table.Name))
			}
		}
	}
	return nil
}

// rebuildTable performs steps 4-7 of the 12-step procedure.
func (db *Database) rebuildTable(ctx context.Context, tx *sqlx.Tx, current, target schemaObject) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
		slog.String("table", current.Name),
		slog.String("current_sql", current.SQL),
		slog.String("new_sql", target.SQL))

	// Step 4: Create the table according to the new schema under a temporary name.
	tempName := current.Name + "_migration_temp"
	tempSQL := strings.Replace(target.SQL, current.Name, tempName, 1)
	if _, err := tx.ExecContext(ctx, tempSQL); err != nil {
		return errors.Wrap(err, "create temporary table", slog.String("query", tempSQL))
	}

	// Step 5: Copy common columns. Quoting handles column names that are SQLite keywords.
	var columns []string
	if err := tx.SelectContext(ctx, &columns, `SELECT '"' || target.name || '"'
FROM pragma_table_info(:table_name) AS current
JOIN pragma_table_info(:table_name, '`+targetSchemaName+`') AS target ON target.name = current.name`,
		sql.Named("table_name", current.Name)); err != nil {
		return errors.Wrap(err, "query common columns")
	}
	if len(columns) > 0 {
		common := strings.Join(columns, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %q (%s) SELECT %s FROM %q", tempName, common, common, current.Name)
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return errors.Wrap(err, "copy data", slog.String("query", copySQL))
		}
	}

	// Step 6: Drop the old table.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", current.Name)); err != nil {
		return errors.Wrap(err, "drop old table")
	}
	// Step 7: Rename the new table to the old table's name.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %q RENAME TO %q", tempName, current.Name)); err != nil {
		return errors.Wrap(err, "rename new table")
	}
	return nil
}

// migrateSchemaObjects drops indexes or triggers that are gone or changed and creates the missing ones. Those
// belonging to rebuilt tables were dropped together with the old table and are recreated here.
func (db *Database) migrateSchemaObjects(ctx context.Context, tx *sqlx.Tx, objectType string) error {
	var (
		current, target []schemaObject
		err             error
	)
	if current, err = querySchemaObjects(ctx, tx, "main", objectType); err != nil {
		return errors.Wrap(err, "query current objects")
	}
	if target, err = querySchemaObjects(ctx, tx, targetSchemaName, objectType); err != nil {
		return errors.Wrap(err, "query target objects")
	}
	currentByName := byName(current)
	targetByName := byName(target)

	for _, object := range current {
		if wanted, ok := targetByName[object.Name]; ok && wanted.SQL == object.SQL {
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping "+objectType, slog.String("name", object.Name))
		dropSQL := fmt.Sprintf("DROP %s %q", strings.ToUpper(objectType), object.Name)
		if _, err = tx.ExecContext(ctx, dropSQL); err != nil {
			return errors.Wrap(err, "drop object", slog.String("query", dropSQL))
		}
	}
	for _, object := range target {
		if existing, ok := currentByName[object.Name]; ok && existing.SQL == object.SQL {
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating "+objectType, slog.String("query", object.SQL))
		if _, err = tx.ExecContext(ctx, object.SQL); err != nil {
			return errors.Wrap(err, "create object", slog.String("name", object.Name))
		}
	}
	return nil
}

// querySchemaObjects lists user defined objects of the given type. Automatic indexes have no SQL and are skipped.
func querySchemaObjects(ctx context.Context, tx *sqlx.Tx, schema, objectType string) ([]schemaObject, error) {
	var objects []schemaObject
	query := fmt.Sprintf(`SELECT name, sql FROM %s.sqlite_schema
WHERE type = ? AND sql IS NOT NULL AND name NOT LIKE 'sqlite_%%'
ORDER BY rowid`, schema)
	if err := tx.SelectContext(ctx, &objects, query, objectType); err != nil {
		return nil, errors.Wrap(err, "select schema objects", slog.String("schema", schema))
	}
	return objects, nil
}

func byName(objects []schemaObject) map[string]schemaObject {
	m := make(map[string]schemaObject, len(objects))
	for _, o := range objects {
		m[o.Name] = o
	}
	return m
}
