package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"nadlan-scraper/config"
)

func newTestServer() *Server {
	return New(&config.Config{}, config.DefaultSelectors(), log.WithField("test", "server"))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d; want 200", rec.Code)
	}
}

func TestScrapeRejectsBadBody(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestScrapeRejectsBadQuery(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad date format", `{"city":"חיפה","start_date":"2024-01-01","end_date":"01/02/2024"}`},
		{"empty city", `{"city":"","start_date":"01/01/2024","end_date":"01/02/2024"}`},
		{"inverted range", `{"city":"חיפה","start_date":"01/02/2024","end_date":"01/01/2024"}`},
	}

	srv := newTestServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want 400", rec.Code)
			}
		})
	}
}

func TestScrapeMethodNotAllowed(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/scrape", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d; want 405", rec.Code)
	}
}
