package pg

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Tables, created by the database migration.
var Tables = []string{
	"api_key",
	"external_task",
}

//go:embed ddl migration sql
var resources embed.FS

// migrateDatabase creates tables and indices, if the schema has no version yet.
// The version is stored as comment of the external_task table.
func migrateDatabase(ctx *pgContext) error {
	versions, err := readSchemaVersions()
	if err != nil {
		return err
	}

	schemaVersion, err := selectSchemaVersion(ctx)
	if err != nil {
		return err
	}

	if schemaVersion != "" {
		if !slices.Contains(versions, schemaVersion) {
			return fmt.Errorf("schema version %s is not supported", schemaVersion)
		}
		return nil
	}

	batch := &pgx.Batch{}

	// tables first, indices afterwards
	tables, err := readStatements("ddl", false)
	if err != nil {
		return err
	}
	indices, err := readStatements("ddl/idx", true)
	if err != nil {
		return err
	}

	for _, stmt := range append(tables, indices...) {
		batch.Queue(stmt)
	}

	batch.Queue(fmt.Sprintf("COMMENT ON TABLE external_task IS %s", quoteString(versions[len(versions)-1])))

	if err := ctx.tx.SendBatch(ctx.txCtx, batch).Close(); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}

	return nil
}

// readSchemaVersions reads all known schema versions, ordered from oldest to latest.
func readSchemaVersions() ([]string, error) {
	b, err := resources.ReadFile("migration/version.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to read resource migration/version.txt: %v", err)
	}

	versions := strings.Fields(string(b))
	if len(versions) == 0 {
		return nil, errors.New("resource migration/version.txt contains no version")
	}

	return versions, nil
}

// readStatements reads the SQL files of a resource directory.
// If perLine is true, each non-empty line of a file is a statement. Otherwise the whole file.
func readStatements(dir string, perLine bool) ([]string, error) {
	entries, err := resources.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources under %s: %v", dir, err)
	}

	var stmts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := path.Join(dir, entry.Name())

		b, err := resources.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read resource %s: %v", name, err)
		}

		if !perLine {
			stmts = append(stmts, string(b))
			continue
		}

		for _, line := range strings.Split(string(b), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				stmts = append(stmts, line)
			}
		}
	}

	return stmts, nil
}

func selectSchemaVersion(ctx *pgContext) (string, error) {
	row := ctx.tx.QueryRow(ctx.txCtx, `
SELECT
	description
FROM
	pg_description
INNER JOIN
	pg_class
ON
	pg_description.objoid = pg_class.oid
INNER JOIN
	pg_namespace
ON
	pg_class.relnamespace = pg_namespace.oid
WHERE
	nspname = $1 AND
	relname = $2
`, ctx.options.databaseSchema, "external_task")

	var schemaVersion string
	if err := row.Scan(&schemaVersion); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to select schema version: %v", err)
	}

	return schemaVersion, nil
}
