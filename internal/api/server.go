// Package api exposes scans, stored setups, trade results and the journal
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"stock-pattern/internal/config"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/internal/scanner"
	"stock-pattern/internal/store"
	"stock-pattern/pkg/utils"
)

// Runner executes scans.
type Runner interface {
	Run(ctx context.Context, req scanner.Request) (*scanner.Result, error)
}

// Store is the persistence the API reads and writes.
type Store interface {
	GetOpenSetups(ctx context.Context) ([]models.Setup, error)
	GetSetups(ctx context.Context, filter store.SetupFilter) ([]models.Setup, error)
	FinalizeSetup(ctx context.Context, result *models.FinalResult) error
	GetResolvedSetups(ctx context.Context, filter store.ResultFilter) ([]models.ResolvedSetup, error)
	SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error
	GetJournal(ctx context.Context, filter store.JournalFilter) ([]models.JournalEntry, error)
	DeactivateJournalEntry(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	router         *gin.Engine
	scanner        Runner
	store          Store
	defaultTickers []string
	scanTimeout    time.Duration
	logger         zerolog.Logger
}

// NewServer wires routes and middleware.
func NewServer(cfg config.ServerConfig, runner Runner, st Store, defaultTickers []string, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:         router,
		scanner:        runner,
		store:          st,
		defaultTickers: defaultTickers,
		scanTimeout:    cfg.ScanTimeout,
		logger:         logger.With().Str("component", "api").Logger(),
	}
	router.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s.setupRoutes(cfg.Metrics)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRoutes(metrics bool) {
	s.router.GET("/health", s.handleHealth)
	if metrics {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	stock := s.router.Group("/api/Stock")
	{
		stock.GET("/getStockSetups", s.handleGetStockSetups)
		stock.GET("/getAllExistingSetups", s.handleGetExistingSetups)
		stock.GET("/getSetups", s.handleGetSetups)
		stock.POST("/saveToFinalResults", s.handleSaveFinalResult)
		stock.GET("/getFinalResultsReport", s.handleFinalResultsReport)
		stock.GET("/getAggregatedSummaryReport", s.handleSummaryReport)
		stock.GET("/getAllJournalEntries", s.handleGetJournal)
		stock.POST("/saveToJournalEntries", s.handleSaveJournal)
		stock.DELETE("/journalEntries/:id", s.handleDeactivateJournal)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrConfigInvalid), errors.Is(err, apperrors.ErrUnknownProvider):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrSetupNotFound), errors.Is(err, apperrors.ErrDataNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseID(c *gin.Context, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parseDateQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.ParseInLocation("2006-01-02", raw, utils.MarketLocation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}
