package models

import (
	"fmt"
	"strings"
	"time"
)

// RawTransaction holds the unprocessed cell text of one result row exactly
// as it appeared on the portal page. This is what the extractor's parse step
// emits before any normalization.
type RawTransaction struct {
	Address      string
	DealDate     string
	Price        string
	PropertyType string
	RoomCount    string
	Area         string

	// SourcePageIndex is the 1-based pagination position the row came from.
	SourcePageIndex int
}

// TransactionRecord is the normalized, validated form of one real-estate
// deal, ready for export.
type TransactionRecord struct {
	Address  string
	DealDate time.Time
	Price    float64

	// Descriptive fields are nil when the portal omitted them for the row.
	PropertyType *string
	RoomCount    *float64
	Area         *float64

	SourcePageIndex int
	ScrapedAt       time.Time
}

// DedupKey identifies a transaction: the portal may repeat rows across
// overlapping pages, but two rows with the same address, deal date and price
// are the same deal.
func (t *TransactionRecord) DedupKey() string {
	return fmt.Sprintf("%s|%s|%.2f",
		strings.ToLower(strings.TrimSpace(t.Address)),
		t.DealDate.Format("2006-01-02"),
		t.Price)
}

// Query describes one scrape run: a portal-recognized city name and an
// inclusive date range. It is immutable for the lifetime of the run.
type Query struct {
	City      string
	StartDate time.Time
	EndDate   time.Time
}

// Validate rejects malformed queries before any navigation happens.
func (q Query) Validate() error {
	if strings.TrimSpace(q.City) == "" {
		return &QueryError{Reason: "city must not be empty"}
	}
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return &QueryError{Reason: "both start and end dates are required"}
	}
	if q.EndDate.Before(q.StartDate) {
		return &QueryError{Reason: fmt.Sprintf("inverted date range: %s > %s",
			q.StartDate.Format("02/01/2006"), q.EndDate.Format("02/01/2006"))}
	}
	return nil
}

// QueryError means the query itself is invalid. It is never retried.
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return "invalid query: " + e.Reason
}

// RunStatus is the terminal state of a scrape run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunReport carries the observability counters for one run. Every skipped
// row and every retry shows up here; nothing is dropped silently.
type RunReport struct {
	City         string    `json:"city"`
	PagesVisited int       `json:"pages_visited"`
	RowsSeen     int       `json:"rows_seen"`
	RowsSkipped  int       `json:"rows_skipped"`
	Retries      int       `json:"retries"`
	Truncated    bool      `json:"truncated"`
	Status       RunStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration reports how long the run took.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
