package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gregtusar/pairs/pkg/analytics"
	"github.com/gregtusar/pairs/pkg/metrics"
	"github.com/gregtusar/pairs/pkg/models"
	"github.com/gregtusar/pairs/pkg/scanner"
	"github.com/gregtusar/pairs/pkg/signal"
	"github.com/sirupsen/logrus"
)

// Engine is the read side of the running pairs trader.
type Engine interface {
	LastScan() *scanner.Batch
	Ranking() *analytics.Ranking
	LastCycle() *signal.CycleReport
	Positions(ctx context.Context) (models.Positions, error)
	Backtest(ctx context.Context, pair models.Pair) (models.BacktestSummary, []models.Trade, error)
	TriggerScan() bool
}

type Options struct {
	Port           int
	AllowedOrigins []string
	// Auth protects /api and /ws when set. Health and metrics stay open.
	Auth   *Authenticator
	Events http.Handler
}

type Server struct {
	engine  Engine
	metrics *metrics.Registry
	opts    Options
	logger  *logrus.Logger
	router  *mux.Router
	server  *http.Server
}

func NewServer(engine Engine, m *metrics.Registry, opts Options, logger *logrus.Logger) *Server {
	s := &Server{
		engine:  engine,
		metrics: m,
		opts:    opts,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	if s.opts.Auth != nil {
		api.Use(s.opts.Auth.Middleware)
	}
	api.HandleFunc("/pairs", s.handlePairs).Methods(http.MethodGet)
	api.HandleFunc("/ranking", s.handleRanking).Methods(http.MethodGet)
	api.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/backtest/{symbol1}/{symbol2}", s.handleBacktest).Methods(http.MethodGet)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)

	if s.opts.Events != nil {
		var events http.Handler = s.opts.Events
		if s.opts.Auth != nil {
			events = s.opts.Auth.Middleware(events)
		}
		s.router.Handle("/ws", events)
	}

	// OPTIONS preflight never matches a method-restricted route.
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) Start() error {
	s.logger.Infof("Starting API server on port %d", s.opts.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	if batch := s.engine.LastScan(); batch != nil {
		response["last_scan"] = batch.Started.UTC()
	}
	if cycle := s.engine.LastCycle(); cycle != nil {
		response["last_cycle"] = cycle.StartedAt.UTC()
	}
	s.writeJSON(w, http.StatusOK, response)
}

type pairFailure struct {
	Symbol1 string `json:"symbol_1"`
	Symbol2 string `json:"symbol_2"`
	Error   string `json:"error"`
}

type scanResponse struct {
	StartedAt    time.Time                    `json:"started_at"`
	Duration     string                       `json:"duration"`
	Analyzed     int                          `json:"analyzed"`
	Cointegrated []models.CointegrationResult `json:"cointegrated"`
	Failed       []pairFailure                `json:"failed"`
}

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	batch := s.engine.LastScan()
	if batch == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no scan has completed yet")
		return
	}

	cointegrated := batch.Cointegrated()
	scanner.SortForExport(cointegrated)

	resp := scanResponse{
		StartedAt:    batch.Started.UTC(),
		Duration:     batch.Duration.String(),
		Analyzed:     len(batch.Analyzed()),
		Cointegrated: cointegrated,
		Failed:       []pairFailure{},
	}
	if resp.Cointegrated == nil {
		resp.Cointegrated = []models.CointegrationResult{}
	}
	for _, f := range batch.Failed() {
		resp.Failed = append(resp.Failed, pairFailure{
			Symbol1: f.Pair.Symbol1,
			Symbol2: f.Pair.Symbol2,
			Error:   f.Err.Error(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	ranking := s.engine.Ranking()
	if ranking == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no ranking available yet")
		return
	}

	top := analytics.DefaultTopK
	if q := r.URL.Query().Get("top"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		top = n
	}

	pairs := ranking.Top(top)
	if pairs == nil {
		pairs = []models.RankedPair{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"weights": ranking.Weights,
		"pairs":   pairs,
	})
}

type signalView struct {
	Symbol1    string  `json:"symbol_1"`
	Symbol2    string  `json:"symbol_2"`
	HedgeRatio float64 `json:"hedge_ratio"`
	ZScore     float64 `json:"zscore"`
	Prior      string  `json:"prior"`
	Next       string  `json:"next"`
	Event      string  `json:"event"`
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	cycle := s.engine.LastCycle()
	if cycle == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no monitoring cycle has completed yet")
		return
	}

	signals := make([]signalView, 0, len(cycle.Signals))
	for _, sig := range cycle.Signals {
		signals = append(signals, signalView{
			Symbol1:    sig.Symbol1,
			Symbol2:    sig.Symbol2,
			HedgeRatio: sig.HedgeRatio,
			ZScore:     sig.ZScore,
			Prior:      string(sig.Prior),
			Next:       string(sig.Next),
			Event:      string(sig.Event),
		})
	}
	failures := make([]pairFailure, 0, len(cycle.Failures))
	for _, f := range cycle.Failures {
		failures = append(failures, pairFailure{Symbol1: f.Symbol1, Symbol2: f.Symbol2, Error: f.Err.Error()})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         cycle.ID,
		"started_at": cycle.StartedAt.UTC(),
		"signals":    signals,
		"failures":   failures,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.engine.Positions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load positions")
		s.writeError(w, http.StatusInternalServerError, "failed to load positions")
		return
	}
	if positions == nil {
		positions = models.Positions{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pair := models.NewPair(strings.ToUpper(vars["symbol1"]), strings.ToUpper(vars["symbol2"]))
	if pair.Symbol1 == pair.Symbol2 {
		s.writeError(w, http.StatusBadRequest, "a pair needs two different symbols")
		return
	}

	summary, trades, err := s.engine.Backtest(r.Context(), pair)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"symbol_1": pair.Symbol1,
			"symbol_2": pair.Symbol2,
		}).Warn("Backtest request failed")
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"trades":  trades,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	queued := s.engine.TriggerScan()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
