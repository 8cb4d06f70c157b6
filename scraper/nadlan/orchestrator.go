package nadlan

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"nadlan-scraper/config"
	"nadlan-scraper/models"
	"nadlan-scraper/utils"
)

// navigator is what the orchestrator needs from a portal session. The real
// implementation is Navigator; tests substitute scripted fakes.
type navigator interface {
	Open(ctx context.Context) error
	Search(ctx context.Context, q models.Query) (SearchOutcome, error)
	NextPage(ctx context.Context) (PageOutcome, error)
	CurrentHTML(ctx context.Context) (string, error)
	Close()
}

// extractor turns stable page markup into records. The real implementation
// is services.Extractor.
type extractor interface {
	Parse(html string, pageIndex int) ([]models.RawTransaction, error)
	Normalize(raw models.RawTransaction) (*models.TransactionRecord, error)
}

// Orchestrator drives one (city, date-range) query to completion: search,
// paginate, extract, dedupe. It owns all run state; nothing is shared
// between concurrent runs.
type Orchestrator struct {
	cfg    *config.Config
	nav    navigator
	ext    extractor
	logger *log.Entry
}

// NewOrchestrator wires an orchestrator over a navigator and an extractor.
func NewOrchestrator(cfg *config.Config, nav navigator, ext extractor, logger *log.Entry) *Orchestrator {
	return &Orchestrator{cfg: cfg, nav: nav, ext: ext, logger: logger}
}

// Run executes the full scrape for q. The returned records are deduplicated
// by (address, dealDate, price) and ordered by first appearance. On a
// terminal failure the records collected so far are returned alongside the
// error so a partial run is not thrown away.
func (o *Orchestrator) Run(ctx context.Context, q models.Query) ([]*models.TransactionRecord, models.RunReport, error) {
	report := models.RunReport{
		City:      q.City,
		Status:    models.RunFailed,
		StartedAt: time.Now(),
	}

	if err := q.Validate(); err != nil {
		report.FinishedAt = time.Now()
		return nil, report, err
	}

	retry := &utils.RetryConfig{
		MaxAttempts: o.cfg.MaxRetries,
		BaseDelay:   o.cfg.RetryBase,
		MaxDelay:    o.cfg.RetryMaxWait,
		Logger:      o.logger,
		OnRetry:     func() { report.Retries++ },
	}
	limiter := rate.NewLimiter(rate.Every(time.Duration(o.cfg.RateLimitMs)*time.Millisecond), 1)

	defer o.nav.Close()

	if err := retry.Do(ctx, "open-session", func() error {
		return o.nav.Open(ctx)
	}); err != nil {
		report.FinishedAt = time.Now()
		return nil, report, err
	}

	o.logger.Infof("searching %s from %s to %s",
		q.City, q.StartDate.Format("02/01/2006"), q.EndDate.Format("02/01/2006"))

	var outcome SearchOutcome
	if err := retry.Do(ctx, "search", func() error {
		var err error
		outcome, err = o.nav.Search(ctx, q)
		return err
	}); err != nil {
		report.FinishedAt = time.Now()
		return nil, report, err
	}

	if outcome == NoResults {
		o.logger.Info("portal reported no results")
		report.Status = models.RunCompleted
		report.FinishedAt = time.Now()
		return []*models.TransactionRecord{}, report, nil
	}

	seen := make(map[string]struct{})
	records := make([]*models.TransactionRecord, 0)

	for page := 1; ; page++ {
		var html string
		if err := retry.Do(ctx, fmt.Sprintf("fetch-page-%d", page), func() error {
			var err error
			html, err = o.nav.CurrentHTML(ctx)
			return err
		}); err != nil {
			report.FinishedAt = time.Now()
			return records, report, err
		}

		rows, err := o.ext.Parse(html, page)
		if err != nil {
			report.FinishedAt = time.Now()
			return records, report, fmt.Errorf("page %d: %w", page, err)
		}

		report.PagesVisited++
		report.RowsSeen += len(rows)

		added := 0
		for _, raw := range rows {
			rec, err := o.ext.Normalize(raw)
			if err != nil {
				report.RowsSkipped++
				o.logger.Debugf("page %d: skipping row: %v", page, err)
				continue
			}
			key := rec.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, rec)
			added++
		}

		o.logger.Infof("page %d: %d rows, %d new records (total %d)",
			page, len(rows), added, len(records))

		if page >= o.cfg.MaxPages {
			o.logger.Warnf("page cap %d reached — truncating run", o.cfg.MaxPages)
			report.Truncated = true
			break
		}

		var pageOutcome PageOutcome
		if err := retry.Do(ctx, fmt.Sprintf("next-page-%d", page), func() error {
			var err error
			pageOutcome, err = o.nav.NextPage(ctx)
			return err
		}); err != nil {
			report.FinishedAt = time.Now()
			return records, report, err
		}

		if pageOutcome == Exhausted {
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			report.FinishedAt = time.Now()
			return records, report, err
		}
	}

	report.Status = models.RunCompleted
	report.FinishedAt = time.Now()
	o.logger.Infof("run completed: %d records, %d pages, %d rows skipped, %d retries, truncated=%v (%s)",
		len(records), report.PagesVisited, report.RowsSkipped, report.Retries,
		report.Truncated, report.Duration().Round(time.Millisecond))
	return records, report, nil
}

// IsQueryError reports whether err was an input rejection rather than a
// scrape failure. The server layer maps these to 400s.
func IsQueryError(err error) bool {
	var qe *models.QueryError
	return errors.As(err, &qe)
}
