package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	-- Daily or intraday OHLCV bars
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		date DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ticker, date)
	);

	-- Detected setups
	CREATE TABLE IF NOT EXISTS stock_setups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		date DATETIME NOT NULL,
		close REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		volume INTEGER NOT NULL,
		vol_ma REAL NOT NULL,
		trend BOOLEAN NOT NULL DEFAULT 0,
		setup BOOLEAN NOT NULL DEFAULT 0,
		signal TEXT NOT NULL,
		pattern TEXT NOT NULL,
		resistance_level REAL NOT NULL,
		breakout_price REAL NOT NULL,
		broke_out BOOLEAN NOT NULL DEFAULT 0,
		is_finalized BOOLEAN NOT NULL DEFAULT 0,
		compression REAL NOT NULL,
		high_slope REAL NOT NULL,
		low_slope REAL NOT NULL,
		smoothed_atr REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		risk_per_share REAL NOT NULL,
		reward_per_share REAL NOT NULL,
		reward_to_risk REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ticker, date)
	);

	-- Resolution of finalized setups
	CREATE TABLE IF NOT EXISTS final_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_setup_id INTEGER NOT NULL,
		date_updated DATETIME NOT NULL,
		price_sold_at REAL NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		is_false_positive BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (stock_setup_id) REFERENCES stock_setups(id)
	);

	-- Journal entries table
	CREATE TABLE IF NOT EXISTS journal_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date DATETIME NOT NULL,
		entry_subject TEXT NOT NULL,
		entry_body TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_setups_open ON stock_setups(is_finalized, date);
	CREATE INDEX IF NOT EXISTS idx_setups_ticker ON stock_setups(ticker, date);
	CREATE INDEX IF NOT EXISTS idx_results_setup ON final_results(stock_setup_id);
	CREATE INDEX IF NOT EXISTS idx_journal_date ON journal_entries(date);
`

// NewSQLiteStore creates a new SQLite-based data store. Parent directories
// of dbPath are created as needed.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStore(db, dialect{name: "sqlite", schema: sqliteSchema})
}
