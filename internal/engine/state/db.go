package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/surge-downloader/batchget/internal/utils"
	_ "modernc.org/sqlite"
)

var (
	db         *sql.DB
	dbMu       sync.Mutex
	dbPath     string
	configured bool
)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	dir TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	reason TEXT,
	error TEXT,
	created_at INTEGER,
	finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS items (
	gid TEXT PRIMARY KEY,
	batch_id TEXT,
	url TEXT NOT NULL,
	dest_path TEXT,
	filename TEXT,
	status TEXT,
	total_size INTEGER,
	downloaded INTEGER,
	mime TEXT,
	error TEXT,
	updated_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_items_batch ON items(batch_id);

CREATE TABLE IF NOT EXISTS resume (
	url_hash TEXT NOT NULL,
	dest_path TEXT NOT NULL,
	url TEXT NOT NULL,
	total_size INTEGER,
	saved_at INTEGER,
	PRIMARY KEY (url_hash, dest_path)
);

CREATE TABLE IF NOT EXISTS segments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url_hash TEXT NOT NULL,
	dest_path TEXT NOT NULL,
	offset INTEGER,
	length INTEGER
);
`

// Configure sets the path for the SQLite database
func Configure(path string) {
	dbMu.Lock()
	defer dbMu.Unlock()
	dbPath = path
	configured = true
}

// initDB opens the configured database and creates the tables
func initDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		return nil
	}

	if !configured || dbPath == "" {
		return fmt.Errorf("state database not configured: call state.Configure() first")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	var err error
	db, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		db = nil
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// CloseDB closes the database connection
func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		_ = db.Close()
		db = nil
	}
}

// GetDB returns the database instance, initializing it if necessary
func GetDB() (*sql.DB, error) {
	dbMu.Lock()
	d := db
	dbMu.Unlock()
	if d != nil {
		return d, nil
	}
	if err := initDB(); err != nil {
		return nil, err
	}
	dbMu.Lock()
	defer dbMu.Unlock()
	return db, nil
}

// IsConfigured reports whether Configure has been called.
func IsConfigured() bool {
	dbMu.Lock()
	defer dbMu.Unlock()
	return configured && dbPath != ""
}

func getDBHelper() *sql.DB {
	d, err := GetDB()
	if err != nil {
		utils.Debug("State DB Error: %v", err)
		return nil
	}
	return d
}

// Transaction helper
func withTx(fn func(*sql.Tx) error) error {
	d := getDBHelper()
	if d == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := d.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
