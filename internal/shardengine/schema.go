package shardengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migration is one ordered (version, up, down) schema step, per spec
// §4.9's migration model. Up and Down are multi-statement SQL scripts;
// either may be empty for a version that only marks a milestone.
type Migration struct {
	Up      string
	Down    string
	Version int
}

const schemaMetaDDL = `CREATE TABLE IF NOT EXISTS schema_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

func ensureSchemaMeta(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaMetaDDL)
	return err
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, fmt.Errorf("corrupt schema_meta version %q: %w", value, err)
	}
	return version, nil
}

func setVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO schema_meta(key, value) VALUES ('version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", version))
	return err
}

// splitStatements parses a semicolon-delimited script into individual
// statements, stripping "--" line comments and tolerating a trailing
// semicolon or blank statements left over after stripping.
func splitStatements(script string) []string {
	lines := strings.Split(script, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	joined := strings.Join(lines, "\n")

	var stmts []string
	for _, stmt := range strings.Split(joined, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func execScript(ctx context.Context, tx *sql.Tx, script string) error {
	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func maxVersion(migrations []Migration) int {
	max := 0
	for _, m := range migrations {
		if m.Version > max {
			max = m.Version
		}
	}
	return max
}

// migrateToVersion brings db from its recorded version to target, running
// registered Up scripts (if moving forward) or Down scripts (if moving
// back) one version at a time. target is clamped to [0, highest registered
// version]; running to the already-current version is a no-op. Each step
// runs in its own transaction: a failing step rolls back and the recorded
// version is left unchanged, so a partial migration never leaves schema_meta
// claiming a version whose DDL didn't fully apply.
func migrateToVersion(ctx context.Context, db *sql.DB, migrations []Migration, target int) error {
	if err := ensureSchemaMeta(ctx, db); err != nil {
		return err
	}

	if hi := maxVersion(migrations); target > hi {
		target = hi
	}
	if target < 0 {
		target = 0
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}

	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	if target > current {
		for v := current + 1; v <= target; v++ {
			m, ok := byVersion[v]
			if !ok {
				continue
			}
			if err := runStep(ctx, db, m.Up, v); err != nil {
				return fmt.Errorf("migrate up to version %d: %w", v, err)
			}
		}
		return nil
	}

	for v := current; v > target; v-- {
		m, ok := byVersion[v]
		if !ok {
			continue
		}
		if err := runStep(ctx, db, m.Down, v-1); err != nil {
			return fmt.Errorf("migrate down from version %d: %w", v, err)
		}
	}
	return nil
}

func runStep(ctx context.Context, db *sql.DB, script string, recordVersion int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if strings.TrimSpace(script) != "" {
		if err := execScript(ctx, tx, script); err != nil {
			return err
		}
	}
	if err := setVersion(ctx, tx, recordVersion); err != nil {
		return err
	}
	return tx.Commit()
}

// initializeSchema brings db to the highest registered migration version.
// It is safe to call repeatedly: once db is current, it is a no-op.
func initializeSchema(ctx context.Context, db *sql.DB, migrations []Migration) error {
	return migrateToVersion(ctx, db, migrations, maxVersion(migrations))
}
