// Package status serves liveness, prometheus metrics and the last round
// report of a running liquidator.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coldbell/dex/liquidator/internal/liquidator"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReportSource yields the most recent round, or nil before the first one.
type ReportSource interface {
	LastReport() *liquidator.RoundReport
}

type Server struct {
	listenAddr string
	source     ReportSource
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

func New(listenAddr string, source ReportSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		listenAddr: listenAddr,
		source:     source,
		gatherer:   gatherer,
		logger:     logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("status server started", "listen_addr", s.listenAddr)

	select {
	case <-ctx.Done():
		s.logger.Info("status server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	OK bool `json:"ok"`
}

type actionResponse struct {
	Kind            string `json:"kind"`
	User            string `json:"user"`
	MarketIndex     uint64 `json:"marketIndex"`
	OrderID         string `json:"orderId,omitempty"`
	BaseAssetAmount string `json:"baseAssetAmount,omitempty"`
	LiquidationType string `json:"liquidationType,omitempty"`
	Signature       string `json:"signature,omitempty"`
	Result          string `json:"result"`
	Error           string `json:"error,omitempty"`
}

type statusResponse struct {
	Ready          bool             `json:"ready"`
	Slot           uint64           `json:"slot,omitempty"`
	Users          int              `json:"users"`
	Evaluated      int              `json:"evaluated"`
	Skipped        int              `json:"skipped"`
	Oracles        int              `json:"oracles"`
	MinMarginRatio string           `json:"minMarginRatio,omitempty"`
	DurationMs     int64            `json:"durationMs"`
	Actions        []actionResponse `json:"actions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report := s.source.LastReport()
	if report == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, statusResponse{Actions: []actionResponse{}})
		return
	}

	resp := statusResponse{
		Ready:          true,
		Slot:           report.Slot,
		Users:          report.Users,
		Evaluated:      report.Evaluated,
		Skipped:        report.Skipped,
		Oracles:        report.Oracles,
		MinMarginRatio: report.MinMarginRatioString(),
		DurationMs:     report.Duration.Milliseconds(),
		Actions:        make([]actionResponse, 0, len(report.Actions)),
	}
	for _, action := range report.Actions {
		item := actionResponse{
			Kind:        string(action.Kind),
			User:        action.User.String(),
			MarketIndex: action.MarketIndex,
			Result:      action.Result(),
		}
		if action.OrderID != nil {
			item.OrderID = action.OrderID.String()
		}
		if action.BaseAssetAmount != nil {
			item.BaseAssetAmount = action.BaseAssetAmount.String()
		}
		if action.Kind == liquidator.ActionLiquidate {
			item.LiquidationType = action.LiquidationType.String()
		}
		if !action.Signature.IsZero() {
			item.Signature = action.Signature.String()
		}
		if action.Err != nil {
			item.Error = action.Err.Error()
		}
		resp.Actions = append(resp.Actions, item)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
