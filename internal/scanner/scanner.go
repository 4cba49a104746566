// Package scanner runs the pattern detector across a watchlist: it fetches
// history, de-duplicates against stored setups, persists new ones and
// notifies.
package scanner

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"stock-pattern/internal/analysis"
	"stock-pattern/internal/analysis/patterns"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/logging"
	"stock-pattern/internal/marketdata"
	"stock-pattern/internal/models"
	"stock-pattern/internal/notify"
	"stock-pattern/pkg/utils"
)

// Pipeline stages reported in ScanError.
const (
	StageFetch   = "fetch"
	StageHistory = "history"
	StageDetect  = "detect"
	StageSave    = "save"
)

// SetupStore is the persistence a scan needs.
type SetupStore interface {
	GetSetupDates(ctx context.Context, ticker string, g models.DateGranularity) (models.DateSet, error)
	SaveSetups(ctx context.Context, setups []models.Setup) ([]models.Setup, error)
}

// Options configures a Scanner.
type Options struct {
	Concurrency int
	LatestOnly  bool
	HistoryBars int
}

// Request describes one scan run.
type Request struct {
	Tickers []string
	// Lookback overrides the detector window when positive.
	Lookback int
}

// Result is the outcome of a scan run.
type Result struct {
	RunID     string         `json:"runId"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"duration"`
	Tickers   int            `json:"tickers"`
	Setups    []models.Setup `json:"setups"`
	Errors    []error        `json:"-"`
}

// Err combines the per-ticker failures, or returns nil.
func (r *Result) Err() error {
	return multierr.Combine(r.Errors...)
}

// Scanner orchestrates scans. It is safe for concurrent use.
type Scanner struct {
	provider marketdata.Provider
	store    SetupStore
	notifier notify.Notifier
	params   patterns.Params
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	newDetector func(patterns.Params, zerolog.Logger) (analysis.PatternDetector, error)
}

func newWedgeDetector(params patterns.Params, logger zerolog.Logger) (analysis.PatternDetector, error) {
	d, err := patterns.NewWedgeDetector(params, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// New creates a Scanner.
func New(provider marketdata.Provider, store SetupStore, notifier notify.Notifier, params patterns.Params, opts Options, logger zerolog.Logger) (*Scanner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if notifier == nil {
		notifier = notify.NewNoOpNotifier()
	}
	return &Scanner{
		provider: provider,
		store:    store,
		notifier: notifier,
		params:   params,
		opts:     opts,
		logger:   logging.WithOperation(logger, "scan"),
		now:      time.Now,

		newDetector: newWedgeDetector,
	}, nil
}

// Params returns the detector parameters used when a request sets no
// overrides.
func (s *Scanner) Params() patterns.Params {
	return s.params
}

func (s *Scanner) detector(req Request) (analysis.PatternDetector, error) {
	params := s.params
	if req.Lookback > 0 {
		params.Lookback = req.Lookback
	}
	return s.newDetector(params, s.logger)
}

// Run scans every requested ticker. Tickers fail independently; their errors
// are collected on the Result. Run itself fails only for an invalid request
// or when every ticker failed.
func (s *Scanner) Run(ctx context.Context, req Request) (*Result, error) {
	tickers := utils.NormalizeTickers(req.Tickers)
	if len(tickers) == 0 {
		return nil, apperrors.NewValidationError("tickers", req.Tickers, "at least one ticker is required")
	}

	det, err := s.detector(req)
	if err != nil {
		return nil, err
	}

	start := s.now()
	res := &Result{
		RunID:     uuid.New().String(),
		StartedAt: start,
		Tickers:   len(tickers),
	}
	logger := s.logger.With().Str("run_id", res.RunID).Logger()
	logger.Info().Int("tickers", len(tickers)).Str("detector", det.Name()).Msg("Scan started")

	perTicker := make([][]models.Setup, len(tickers))
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			setups, err := s.scanTicker(ctx, det, ticker, start)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			perTicker[i] = setups
			return nil
		})
	}
	_ = g.Wait()

	for _, setups := range perTicker {
		res.Setups = append(res.Setups, setups...)
	}
	res.Errors = errs
	res.Duration = time.Since(start)
	scanDurationMetrics.Observe(res.Duration.Seconds())

	if len(res.Setups) > 0 {
		if err := s.notifier.SendSetups(ctx, start, res.Setups); err != nil {
			logger.Warn().Err(err).Msg("Failed to send setup notifications")
		}
	}

	if len(errs) > 0 && len(errs) == len(tickers) {
		scanRunsMetrics.WithLabelValues("failed").Inc()
		logger.Error().Err(res.Err()).Msg("Scan failed for every ticker")
		if nerr := s.notifier.SendError(ctx, res.Err(), "scan "+res.RunID); nerr != nil {
			logger.Warn().Err(nerr).Msg("Failed to send error notification")
		}
		return res, fmt.Errorf("scan %s: %w", res.RunID, res.Err())
	}

	outcome := "ok"
	if len(errs) > 0 {
		outcome = "partial"
	}
	scanRunsMetrics.WithLabelValues(outcome).Inc()
	logger.Info().
		Int("setups", len(res.Setups)).
		Int("errors", len(errs)).
		Dur("duration", res.Duration).
		Msg("Scan completed")

	return res, nil
}

// scanTicker runs the pipeline for one ticker and returns the persisted
// setups.
func (s *Scanner) scanTicker(ctx context.Context, det analysis.PatternDetector, ticker string, now time.Time) ([]models.Setup, error) {
	logger := logging.WithTicker(s.logger, ticker)

	fail := func(stage string, err error) error {
		if apperrors.Is(err, context.DeadlineExceeded) && !apperrors.Is(err, apperrors.ErrTimeout) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		tickerErrorMetrics.WithLabelValues(stage).Inc()
		logger.Warn().Err(err).Str("stage", stage).Msg("Ticker scan failed")
		return apperrors.NewScanError(ticker, stage, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(StageFetch, err)
	}

	from := utils.ScanStartDate(now, max(s.opts.HistoryBars, det.MinBars()))
	bars, err := s.provider.FetchBars(ctx, ticker, from, now)
	if err != nil {
		return nil, fail(StageFetch, err)
	}

	existing, err := s.store.GetSetupDates(ctx, ticker, s.params.DateGranularity)
	if err != nil {
		return nil, fail(StageHistory, err)
	}

	setups, err := det.Detect(ticker, bars, existing)
	if err != nil {
		return nil, fail(StageDetect, err)
	}
	if len(setups) == 0 {
		logger.Debug().Int("bars", len(bars)).Msg("No setups")
		return nil, nil
	}

	if s.opts.LatestOnly {
		setups = setups[len(setups)-1:]
	}

	saved, err := s.store.SaveSetups(ctx, setups)
	if err != nil {
		return nil, fail(StageSave, err)
	}

	for _, setup := range saved {
		setupsDetectedMetrics.WithLabelValues(setup.Pattern, strconv.FormatBool(setup.BrokeOut)).Inc()
		logging.LogSetup(logger, setup.Ticker, setup.Signal, setup.Date, setup.BreakoutPrice, setup.RewardToRisk)
	}
	return saved, nil
}
