package sqlite

import "database/sql"

// schema holds one row per named record. User and group are stored as JSON
// so the record mirrors the wire shape.
const schema = `
CREATE TABLE IF NOT EXISTS app_state (
    name TEXT PRIMARY KEY,
    user TEXT,
    active_group TEXT,
    updated_at INTEGER NOT NULL
);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
