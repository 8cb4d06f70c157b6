package storage

import "nadlan-scraper/models"

// RecordWriter is the interface any export backend must satisfy. Writers
// receive the orchestrator's final record sequence and know nothing about
// scrape mechanics.
type RecordWriter interface {
	Write(records []*models.TransactionRecord) error
	Close() error
}
