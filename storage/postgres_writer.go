package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"nadlan-scraper/models"
)

// PostgresWriter persists transaction records to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id            SERIAL PRIMARY KEY,
			address       TEXT          NOT NULL,
			deal_date     DATE          NOT NULL,
			price         NUMERIC(14,2) NOT NULL,
			property_type TEXT,
			rooms         NUMERIC(4,1),
			area_sqm      NUMERIC(8,2),
			page          INT           NOT NULL DEFAULT 0,
			scraped_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			UNIQUE (address, deal_date, price)
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_deal_date ON transactions(deal_date);
		CREATE INDEX IF NOT EXISTS idx_transactions_price     ON transactions(price);
	`)
	return err
}

// Write batch-inserts records. Rows already stored from a previous run are
// skipped via the (address, deal_date, price) uniqueness constraint.
func (pw *PostgresWriter) Write(records []*models.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := pw.insertBatch(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.TransactionRecord) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*7)

	for idx, r := range batch {
		base := idx * 7
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		valueArgs = append(valueArgs,
			r.Address, r.DealDate, r.Price, r.PropertyType, r.RoomCount, r.Area, r.SourcePageIndex)
	}

	query := fmt.Sprintf(`
		INSERT INTO transactions (address, deal_date, price, property_type, rooms, area_sqm, page)
		VALUES %s
		ON CONFLICT (address, deal_date, price) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all stored transactions ordered by deal date.
func (pw *PostgresWriter) FetchAll() ([]*models.TransactionRecord, error) {
	rows, err := pw.db.Query(`
		SELECT address, deal_date, price, property_type, rooms, area_sqm, page, scraped_at
		FROM transactions
		ORDER BY deal_date, id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var records []*models.TransactionRecord
	for rows.Next() {
		r := &models.TransactionRecord{}
		if err := rows.Scan(
			&r.Address, &r.DealDate, &r.Price, &r.PropertyType,
			&r.RoomCount, &r.Area, &r.SourcePageIndex, &r.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
