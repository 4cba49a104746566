package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS bars (
		id BIGSERIAL PRIMARY KEY,
		ticker TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume BIGINT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(ticker, date)
	);

	CREATE TABLE IF NOT EXISTS stock_setups (
		id BIGSERIAL PRIMARY KEY,
		ticker TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		volume BIGINT NOT NULL,
		vol_ma DOUBLE PRECISION NOT NULL,
		trend BOOLEAN NOT NULL DEFAULT FALSE,
		setup BOOLEAN NOT NULL DEFAULT FALSE,
		signal TEXT NOT NULL,
		pattern TEXT NOT NULL,
		resistance_level DOUBLE PRECISION NOT NULL,
		breakout_price DOUBLE PRECISION NOT NULL,
		broke_out BOOLEAN NOT NULL DEFAULT FALSE,
		is_finalized BOOLEAN NOT NULL DEFAULT FALSE,
		compression DOUBLE PRECISION NOT NULL,
		high_slope DOUBLE PRECISION NOT NULL,
		low_slope DOUBLE PRECISION NOT NULL,
		smoothed_atr DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		take_profit DOUBLE PRECISION NOT NULL,
		risk_per_share DOUBLE PRECISION NOT NULL,
		reward_per_share DOUBLE PRECISION NOT NULL,
		reward_to_risk DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(ticker, date)
	);

	CREATE TABLE IF NOT EXISTS final_results (
		id BIGSERIAL PRIMARY KEY,
		stock_setup_id BIGINT NOT NULL REFERENCES stock_setups(id),
		date_updated TIMESTAMPTZ NOT NULL,
		price_sold_at DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		is_false_positive BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id BIGSERIAL PRIMARY KEY,
		date TIMESTAMPTZ NOT NULL,
		entry_subject TEXT NOT NULL,
		entry_body TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

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

// NewPostgresStore creates a Postgres-backed data store using the pgx driver.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return newSQLStore(db, dialect{name: "postgres", positional: true, schema: postgresSchema})
}
