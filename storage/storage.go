package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"roast-telegram-bot/stats"
)

// DB wraps the SQLite database connection and persists roast stats.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS group_stats (
		group_id TEXT PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS user_counts (
		group_id TEXT NOT NULL REFERENCES group_stats(group_id),
		user_id TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_user_counts_position ON user_counts(group_id, position);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Load reads every group's counters. Users come back in the order they were
// first recorded.
func (db *DB) Load(ctx context.Context) (stats.Snapshot, error) {
	snap := make(stats.Snapshot)

	rows, err := db.conn.QueryContext(ctx, `SELECT group_id, total FROM group_stats`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var groupID string
		gs := &stats.GroupStats{}
		if err := rows.Scan(&groupID, &gs.Total); err != nil {
			rows.Close()
			return nil, err
		}
		snap[groupID] = gs
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = db.conn.QueryContext(ctx, `
	SELECT group_id, user_id, count FROM user_counts
	ORDER BY group_id, position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var groupID string
		var uc stats.UserCount
		if err := rows.Scan(&groupID, &uc.UserID, &uc.Count); err != nil {
			return nil, err
		}
		gs, ok := snap[groupID]
		if !ok {
			gs = &stats.GroupStats{}
			snap[groupID] = gs
		}
		gs.Users = append(gs.Users, uc)
	}
	return snap, rows.Err()
}

// Save replaces the stored counters with snap in a single transaction.
func (db *DB) Save(ctx context.Context, snap stats.Snapshot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_counts`); err != nil {
		return fmt.Errorf("clear user counts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_stats`); err != nil {
		return fmt.Errorf("clear group stats: %w", err)
	}

	groupStmt, err := tx.PrepareContext(ctx, `INSERT INTO group_stats (group_id, total) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer groupStmt.Close()

	userStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO user_counts (group_id, user_id, count, position) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer userStmt.Close()

	for groupID, gs := range snap {
		if _, err := groupStmt.ExecContext(ctx, groupID, gs.Total); err != nil {
			return fmt.Errorf("save group %s: %w", groupID, err)
		}
		for i, uc := range gs.Users {
			if _, err := userStmt.ExecContext(ctx, groupID, uc.UserID, uc.Count, i); err != nil {
				return fmt.Errorf("save user %s in group %s: %w", uc.UserID, groupID, err)
			}
		}
	}

	return tx.Commit()
}
