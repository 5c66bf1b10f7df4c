// Package blotter persists executed arbitrage trades to a local SQLite
// database. Trades and their four legs live in separate tables; nothing
// about live quotes is stored here.
package blotter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hgiraudo/rofex/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id               TEXT PRIMARY KEY,
    days_to_maturity INTEGER NOT NULL,
    short_rate       REAL    NOT NULL,
    long_rate        REAL    NOT NULL,
    today_flow       REAL    NOT NULL,
    maturity_flow    REAL    NOT NULL,
    profit           REAL    NOT NULL,
    maturity_date    DATETIME,
    created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_legs (
    trade_id TEXT    NOT NULL REFERENCES trades(id),
    seq      INTEGER NOT NULL,
    symbol   TEXT    NOT NULL,
    side     TEXT    NOT NULL,
    quantity INTEGER NOT NULL,
    price    REAL    NOT NULL,
    PRIMARY KEY (trade_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at DESC);
`

// Store is the trade blotter. It implements the trade-recorder capability
// used by the watch registry.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the blotter database at the given path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("blotter: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blotter: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record writes a trade and its legs in one transaction.
func (s *Store) Record(ctx context.Context, trade models.ArbitrageTrade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("blotter: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (id, days_to_maturity, short_rate, long_rate,
			today_flow, maturity_flow, profit, maturity_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.DaysToMaturity, trade.ShortRate, trade.LongRate,
		trade.TodayFlow, trade.MaturityFlow, trade.Profit,
		trade.MaturityDate.UTC(), trade.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("blotter: insert trade %s: %w", trade.ID, err)
	}

	for i, leg := range trade.Legs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trade_legs (trade_id, seq, symbol, side, quantity, price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			trade.ID, i, leg.Symbol, string(leg.Side), leg.Quantity, leg.Price)
		if err != nil {
			return fmt.Errorf("blotter: insert leg %d of %s: %w", i, trade.ID, err)
		}
	}

	return tx.Commit()
}

// Recent returns up to limit trades, newest first, with their legs.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.ArbitrageTrade, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, days_to_maturity, short_rate, long_rate,
		       today_flow, maturity_flow, profit, maturity_date, created_at
		FROM trades ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("blotter: query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.ArbitrageTrade
	for rows.Next() {
		var t models.ArbitrageTrade
		var maturity, created time.Time
		if err := rows.Scan(&t.ID, &t.DaysToMaturity, &t.ShortRate, &t.LongRate,
			&t.TodayFlow, &t.MaturityFlow, &t.Profit, &maturity, &created); err != nil {
			return nil, fmt.Errorf("blotter: scan trade: %w", err)
		}
		t.MaturityDate = maturity
		t.CreatedAt = created
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blotter: iterate trades: %w", err)
	}

	for i := range trades {
		legs, err := s.legs(ctx, trades[i].ID)
		if err != nil {
			return nil, err
		}
		trades[i].Legs = legs
	}
	return trades, nil
}

func (s *Store) legs(ctx context.Context, tradeID string) ([]models.TradeLeg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, side, quantity, price
		FROM trade_legs WHERE trade_id = ? ORDER BY seq`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("blotter: query legs of %s: %w", tradeID, err)
	}
	defer rows.Close()

	var legs []models.TradeLeg
	for rows.Next() {
		var leg models.TradeLeg
		var side string
		if err := rows.Scan(&leg.Symbol, &side, &leg.Quantity, &leg.Price); err != nil {
			return nil, fmt.Errorf("blotter: scan leg: %w", err)
		}
		leg.Side = models.OrderSide(side)
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
