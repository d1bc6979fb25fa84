package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/modules/reports"
	"github.com/aristath/finreport/internal/scheduler"
)

// PortfolioSummary is a configured portfolio as listed by the API
type PortfolioSummary struct {
	Name              string `json:"name"`
	ReportingCurrency string `json:"reporting_currency"`
	Benchmark         string `json:"benchmark,omitempty"`
	Start             string `json:"start"`
	End               string `json:"end"`
	NumSim            int    `json:"num_sim"`
	TimeSim           int    `json:"time_sim"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "finreport",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleListPortfolios lists the configured portfolios
// GET /api/portfolios
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	cfgs, err := s.runner.Portfolios()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load portfolios")
		s.writeError(w, http.StatusInternalServerError, "failed to load portfolios")
		return
	}

	out := make([]PortfolioSummary, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, summarize(cfg))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleListReports lists stored reports, for one portfolio when {name} is set
// GET /api/portfolios/{name}/reports, GET /api/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	metas, err := s.reports.List(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list reports")
		s.writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	s.writeJSON(w, http.StatusOK, metas)
}

// handleLatestReport returns a portfolio's newest report
// GET /api/portfolios/{name}/reports/latest
func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Latest(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleGetReport returns one report by run ID
// GET /api/reports/{runID}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleTriggerRun starts an analysis in the background. Progress is
// published on the event stream.
// POST /api/portfolios/{name}/runs
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	cfgs, err := s.runner.Portfolios()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load portfolios")
		s.writeError(w, http.StatusInternalServerError, "failed to load portfolios")
		return
	}
	if _, ok := config.FindPortfolio(cfgs, name); !ok {
		s.writeError(w, http.StatusNotFound, "unknown portfolio")
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		report, err := s.runner.RunPortfolio(s.runCtx, name)
		if err != nil {
			s.log.Error().Err(err).Str("portfolio", name).Msg("Triggered run failed")
			return
		}
		s.log.Info().Str("portfolio", name).Str("run_id", report.RunID).Msg("Triggered run completed")
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"portfolio": name,
		"status":    "accepted",
	})
}

func (s *Server) writeReportError(w http.ResponseWriter, err error) {
	if errors.Is(err, reports.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if errors.Is(err, scheduler.ErrUnknownPortfolio) {
		s.writeError(w, http.StatusNotFound, "unknown portfolio")
		return
	}
	s.log.Error().Err(err).Msg("Failed to load report")
	s.writeError(w, http.StatusInternalServerError, "failed to load report")
}

func summarize(cfg config.PortfolioConfig) PortfolioSummary {
	out := PortfolioSummary{
		Name:              cfg.Name,
		ReportingCurrency: cfg.ReportingCurrency,
		Start:             cfg.Period.Start,
		End:               cfg.Period.End,
		NumSim:            cfg.NumSim,
		TimeSim:           cfg.TimeSim,
	}
	if cfg.Benchmark != nil {
		out.Benchmark = cfg.Benchmark.Code
	}
	return out
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
