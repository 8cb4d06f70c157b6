package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"nadlan-scraper/config"
	"nadlan-scraper/models"
	"nadlan-scraper/scraper/nadlan"
	"nadlan-scraper/server"
	"nadlan-scraper/services"
	"nadlan-scraper/storage"
)

const dateLayout = "02/01/2006"

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
}

func main() {
	city := flag.String("city", "", "City name to search (as recognized by the portal)")
	start := flag.String("start", "", "Range start date, DD/MM/YYYY (inclusive)")
	end := flag.String("end", "", "Range end date, DD/MM/YYYY (inclusive)")
	serve := flag.Bool("serve", false, "Run the HTTP API instead of a one-shot scrape")
	addr := flag.String("addr", ":8080", "Listen address in serve mode")
	logLevel := flag.String("loglevel", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	parsedLevel, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(parsedLevel)

	cfg := config.Load()
	sel, err := config.LoadSelectors(cfg.SelectorsPath)
	if err != nil {
		log.Fatalf("Failed to load selectors: %v", err)
	}

	if *serve {
		runServer(cfg, sel, *addr)
		return
	}

	query, err := parseQueryFlags(*city, *start, *end)
	if err != nil {
		log.Fatalf("Bad query: %v", err)
	}

	runOnce(cfg, sel, query)
}

func runServer(cfg *config.Config, sel config.Selectors, addr string) {
	logger := log.WithField("component", "server")
	srv := &http.Server{
		Addr:    addr,
		Handler: server.New(cfg, sel, logger),
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server failed: %v", err)
	}
}

func runOnce(cfg *config.Config, sel config.Selectors, query models.Query) {
	logger := log.WithField("city", query.City)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	nav := nadlan.NewNavigator(cfg, sel.Nav, logger)
	ext := services.NewExtractor(sel.Results, logger)
	orch := nadlan.NewOrchestrator(cfg, nav, ext, logger)

	records, report, err := orch.Run(ctx, query)
	if err != nil {
		logger.Errorf("Scrape failed: %v", err)
		if len(records) == 0 {
			os.Exit(1)
		}
		logger.Warnf("Keeping %d records from the partial run", len(records))
	}

	if len(records) == 0 {
		logger.Warn("No transactions found for this query")
		return
	}

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Fatalf("Failed to create CSV writer: %v", err)
	}
	defer csvWriter.Close()

	if err := csvWriter.Write(records); err != nil {
		logger.Errorf("CSV write failed: %v", err)
	} else {
		logger.Infof("%d transactions saved to %s", len(records), cfg.CSVOutputPath)
	}

	if cfg.PostgresEnabled {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer pgWriter.Close()

		if err := pgWriter.Write(records); err != nil {
			logger.Errorf("PostgreSQL write failed: %v", err)
		} else {
			logger.Info("Transactions stored in PostgreSQL (table: transactions)")
		}
	}

	logger.Infof("Run summary — pages: %d | rows seen: %d | skipped: %d | retries: %d | truncated: %v | took: %s",
		report.PagesVisited, report.RowsSeen, report.RowsSkipped,
		report.Retries, report.Truncated, report.Duration().Round(time.Millisecond))
}

func parseQueryFlags(city, start, end string) (models.Query, error) {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return models.Query{}, &models.QueryError{Reason: "start must be DD/MM/YYYY"}
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return models.Query{}, &models.QueryError{Reason: "end must be DD/MM/YYYY"}
	}
	q := models.Query{City: city, StartDate: startDate, EndDate: endDate}
	return q, q.Validate()
}
