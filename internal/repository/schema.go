package repository

import (
	"database/sql"
	"fmt"
)

// schema - таблицы сервиса (идемпотентно)
var schema = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		type VARCHAR(50) NOT NULL,
		severity VARCHAR(10) NOT NULL DEFAULT 'info',
		symbol VARCHAR(30) NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		meta JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_symbol_ts ON notifications (symbol, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		external_id VARCHAR(64) NOT NULL DEFAULT '',
		exchange VARCHAR(50) NOT NULL,
		symbol VARCHAR(30) NOT NULL,
		side VARCHAR(10) NOT NULL,
		amount DECIMAL(30, 10) NOT NULL,
		filled_amount DECIMAL(30, 10) NOT NULL DEFAULT 0,
		avg_price DECIMAL(30, 10) NOT NULL DEFAULT 0,
		fee DECIMAL(30, 10) NOT NULL DEFAULT 0,
		reduce_only BOOLEAN NOT NULL DEFAULT true,
		reason VARCHAR(30) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id UUID PRIMARY KEY,
		status VARCHAR(20) NOT NULL,
		start_at TIMESTAMPTZ,
		end_at TIMESTAMPTZ,
		initial_capital DECIMAL(30, 10) NOT NULL,
		final_value DECIMAL(30, 10) NOT NULL,
		total_return DOUBLE PRECISION NOT NULL,
		report JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate создает недостающие таблицы
func Migrate(db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
