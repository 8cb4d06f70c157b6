package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"nadlan-scraper/config"
	"nadlan-scraper/models"
	"nadlan-scraper/scraper/nadlan"
	"nadlan-scraper/services"
)

const dateLayout = "02/01/2006"

// Server exposes scrape runs over HTTP. Each request builds its own browser
// session and orchestrator, so concurrent queries stay fully isolated.
type Server struct {
	cfg    *config.Config
	sel    config.Selectors
	logger *log.Entry
	router *mux.Router
}

// New creates a Server with its routes registered.
func New(cfg *config.Config, sel config.Selectors, logger *log.Entry) *Server {
	s := &Server{cfg: cfg, sel: sel, logger: logger, router: mux.NewRouter()}
	s.router.HandleFunc("/api/scrape", s.handleScrape).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type scrapeRequest struct {
	City      string `json:"city"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type recordJSON struct {
	Address      string   `json:"address"`
	DealDate     string   `json:"deal_date"`
	Price        float64  `json:"price"`
	PropertyType *string  `json:"property_type,omitempty"`
	RoomCount    *float64 `json:"room_count,omitempty"`
	Area         *float64 `json:"area_sqm,omitempty"`
	Page         int      `json:"page"`
}

type scrapeResponse struct {
	Records []recordJSON     `json:"records"`
	Report  models.RunReport `json:"report"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	query, err := parseQuery(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger := s.logger.WithField("city", query.City)
	nav := nadlan.NewNavigator(s.cfg, s.sel.Nav, logger)
	ext := services.NewExtractor(s.sel.Results, logger)
	orch := nadlan.NewOrchestrator(s.cfg, nav, ext, logger)

	records, report, err := orch.Run(r.Context(), query)
	if err != nil {
		if nadlan.IsQueryError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Errorf("scrape failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := scrapeResponse{Records: make([]recordJSON, 0, len(records)), Report: report}
	for _, rec := range records {
		resp.Records = append(resp.Records, recordJSON{
			Address:      rec.Address,
			DealDate:     rec.DealDate.Format(dateLayout),
			Price:        rec.Price,
			PropertyType: rec.PropertyType,
			RoomCount:    rec.RoomCount,
			Area:         rec.Area,
			Page:         rec.SourcePageIndex,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Errorf("encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func parseQuery(req scrapeRequest) (models.Query, error) {
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return models.Query{}, &models.QueryError{Reason: "start_date must be DD/MM/YYYY"}
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return models.Query{}, &models.QueryError{Reason: "end_date must be DD/MM/YYYY"}
	}
	q := models.Query{City: req.City, StartDate: start, EndDate: end}
	return q, q.Validate()
}
