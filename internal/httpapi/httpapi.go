// Package httpapi is the HTTP boundary: gorilla/mux routing, JSON
// encode/decode, and translation of apperr.Kind into HTTP status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/withobsrvr/fx-transfer-engine/internal/apperr"
	"github.com/withobsrvr/fx-transfer-engine/internal/fxrate"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
	"github.com/withobsrvr/fx-transfer-engine/internal/txengine"
)

// pinger is satisfied by *store.Pool (via its embedded *pgxpool.Pool).
type pinger interface {
	Ping(ctx context.Context) error
}

// Server owns the router and its collaborators.
type Server struct {
	router *mux.Router
	engine *txengine.Engine
	rates  *fxrate.Store
	db     pinger
	log    zerolog.Logger
}

// New builds the router and registers all routes.
func New(engine *txengine.Engine, rates *fxrate.Store, db pinger, log zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		engine: engine,
		rates:  rates,
		db:     db,
		log:    log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/fx-rate", s.withRequestLog(s.handlePostFxRate)).Methods(http.MethodPost)
	s.router.HandleFunc("/fx-rate/{base}-{quote}", s.withRequestLog(s.handleGetFxRate)).Methods(http.MethodGet)
	s.router.HandleFunc("/transfer", s.withRequestLog(s.handlePostTransfer)).Methods(http.MethodPost)
	s.router.HandleFunc("/transfer/{id}", s.withRequestLog(s.handleGetTransfer)).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// ServeHTTP satisfies http.Handler so Server can be handed directly to
// http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type fxRateRequest struct {
	Pair      string `json:"pair"`
	Rate      string `json:"rate"`
	Timestamp string `json:"timestamp"`
}

type fxRateResponse struct {
	Pair      string        `json:"pair"`
	Rate      money.Decimal `json:"rate"`
	Timestamp time.Time     `json:"timestamp"`
}

func (s *Server) handlePostFxRate(w http.ResponseWriter, r *http.Request) {
	var req fxRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.New(apperr.InvalidInput, "malformed request body"))
		return
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		respondError(w, apperr.Wrap(apperr.InvalidInput, "malformed timestamp", err))
		return
	}

	rate, err := s.rates.RecordRate(r.Context(), req.Pair, req.Rate, ts)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		Status: "ok",
		Data: fxRateResponse{
			Pair:      rate.Pair,
			Rate:      rate.Rate,
			Timestamp: rate.Timestamp,
		},
	})
}

func (s *Server) handleGetFxRate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	base, quote := vars["base"], vars["quote"]

	rate, err := s.rates.LatestRate(r.Context(), base, quote)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, fxRateResponse{
		Pair:      rate.Pair,
		Rate:      rate.Rate,
		Timestamp: rate.Timestamp,
	})
}

type transferRequest struct {
	SourceCurrency string `json:"source_currency"`
	TargetCurrency string `json:"target_currency"`
	SourceAmount   string `json:"source_amount"`
}

type transferResponse struct {
	ID             int64      `json:"id"`
	SourceCurrency string     `json:"source_currency"`
	TargetCurrency string     `json:"target_currency"`
	SourceAmount   money.Decimal `json:"source_amount"`
	TargetAmount   money.Decimal `json:"target_amount"`
	FxRate         money.Decimal `json:"fx_rate"`
	Margin         money.Decimal `json:"margin"`
	Revenue        money.Decimal `json:"revenue"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	SettledAt      *time.Time `json:"settled_at"`
}

func toTransferResponse(tx txengine.Transaction) transferResponse {
	return transferResponse{
		ID:             tx.ID,
		SourceCurrency: tx.SourceCurrency,
		TargetCurrency: tx.TargetCurrency,
		SourceAmount:   tx.SourceAmount,
		TargetAmount:   tx.TargetAmount,
		FxRate:         tx.FxRate,
		Margin:         tx.Margin,
		Revenue:        tx.Revenue,
		Status:         string(tx.Status),
		CreatedAt:      tx.CreatedAt,
		SettledAt:      tx.SettledAt,
	}
}

func (s *Server) handlePostTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.New(apperr.InvalidInput, "malformed request body"))
		return
	}

	tx, err := s.engine.CreateTransaction(r.Context(), txengine.CreateRequest{
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		SourceAmount:   req.SourceAmount,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{Status: "ok", Data: toTransferResponse(tx)})
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondError(w, apperr.New(apperr.InvalidInput, "malformed transaction id"))
		return
	}

	tx, err := s.engine.GetTransaction(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toTransferResponse(tx))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	status := httpStatus(apperr.KindOf(err))
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func httpStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput, apperr.InsufficientLiquidity:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvariantViolation, apperr.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
