// Package database provides the optional PostgreSQL price-history store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/FaserF/keyprice-scraper/internal/models"
)

// DB wraps the PostgreSQL connection and stores one row per successful
// snapshot. The scraper runs fine without it; it exists for price history
// analysis.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New creates a new database connection.
func New(dsn string, logger zerolog.Logger) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{
		db:     db,
		logger: logger.With().Str("component", "database").Logger(),
	}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks if the database connection is alive.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// EnsureSchema creates the price_history table if it does not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS price_history (
			id BIGSERIAL PRIMARY KEY,
			product_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			low_price DOUBLE PRECISION,
			high_price DOUBLE PRECISION,
			offer_count INTEGER NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating price_history table: %w", err)
	}
	return nil
}

// InsertSnapshot appends one snapshot for a product to the history.
func (d *DB) InsertSnapshot(ctx context.Context, ref models.ProductRef, snapshot models.PriceSnapshot) error {
	query := `
		INSERT INTO price_history (product_id, currency, low_price, high_price, offer_count, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := d.db.ExecContext(ctx, query,
		ref.ProductID,
		string(snapshot.Currency),
		snapshot.LowPrice,
		snapshot.HighPrice,
		snapshot.OfferCount,
		snapshot.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	d.logger.Debug().
		Str("productId", ref.ProductID).
		Int("offerCount", snapshot.OfferCount).
		Msg("snapshot stored")
	return nil
}

// GetSnapshotCount returns the total number of stored snapshots.
func (d *DB) GetSnapshotCount(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return count, nil
}

// GetRecentSnapshots returns the most recent stored snapshots for a product,
// newest first.
func (d *DB) GetRecentSnapshots(ctx context.Context, productID string, limit int) ([]models.PriceSnapshot, error) {
	query := `
		SELECT currency, low_price, high_price, offer_count, fetched_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY fetched_at DESC
		LIMIT $2`

	rows, err := d.db.QueryContext(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.PriceSnapshot
	for rows.Next() {
		var snapshot models.PriceSnapshot
		var currency string
		if err := rows.Scan(&currency, &snapshot.LowPrice, &snapshot.HighPrice, &snapshot.OfferCount, &snapshot.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshot.Currency = models.Currency(currency)
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}
