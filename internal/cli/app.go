package cli

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"stock-pattern/internal/config"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/marketdata"
	"stock-pattern/internal/notify"
	"stock-pattern/internal/scanner"
	"stock-pattern/internal/store"
)

// App holds the application dependencies. Expensive pieces are built on
// first use so commands such as "config path" need no database.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger

	store    *store.SQLStore
	provider marketdata.Provider
	closers  []func() error
}

// Store opens the configured database.
func (a *App) Store() (*store.SQLStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	var (
		st  *store.SQLStore
		err error
	)
	switch a.Config.Store.Driver {
	case "postgres":
		st, err = store.NewPostgresStore(a.Config.Store.DSN)
	default:
		st, err = store.NewSQLiteStore(a.Config.Store.Path)
	}
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("driver", a.Config.Store.Driver).Msg("Store opened")
	a.store = st
	a.closers = append(a.closers, st.Close)
	return st, nil
}

// Provider builds the configured bar source. API providers are layered
// with database persistence and the Redis cache when those are enabled.
func (a *App) Provider(ctx context.Context) (marketdata.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	base, err := a.baseProvider(a.Config.Data.Provider)
	if err != nil {
		return nil, err
	}
	provider := base

	if a.Config.Data.Persist && isAPIProvider(a.Config.Data.Provider) {
		st, err := a.Store()
		if err != nil {
			return nil, err
		}
		provider = marketdata.NewStoredProvider(provider, st, a.Config.Data.MaxAge, a.Logger)
	}

	if a.Config.Cache.Enabled {
		cache, err := marketdata.NewRedisCache(ctx, marketdata.RedisConfig{
			Addr:     a.Config.Cache.Addr,
			Password: a.Config.Cache.Password,
			DB:       a.Config.Cache.DB,
		})
		if err != nil {
			a.Logger.Warn().Err(err).Str("addr", a.Config.Cache.Addr).Msg("Redis unavailable, continuing without cache")
		} else {
			a.closers = append(a.closers, cache.Close)
			provider = marketdata.NewCachedProvider(provider, cache, a.Config.Cache.TTL, a.Logger)
		}
	}

	a.provider = provider
	return provider, nil
}

func isAPIProvider(name string) bool {
	return name == "alphavantage" || name == "polygon"
}

func (a *App) baseProvider(name string) (marketdata.Provider, error) {
	data := a.Config.Data
	switch name {
	case "alphavantage":
		return marketdata.NewAlphaVantage(marketdata.AlphaVantageConfig{
			APIKey:            a.Config.Credentials.AlphaVantage.APIKey,
			Interval:          data.Interval,
			RequestsPerMinute: data.RequestsPerMinute,
			Timeout:           data.Timeout,
		}, a.Logger)
	case "polygon":
		multiplier, timespan, err := polygonSpan(data.Interval)
		if err != nil {
			return nil, err
		}
		return marketdata.NewPolygon(marketdata.PolygonConfig{
			APIKey:            a.Config.Credentials.Polygon.APIKey,
			Multiplier:        multiplier,
			Timespan:          timespan,
			RequestsPerMinute: data.RequestsPerMinute,
			Timeout:           data.Timeout,
		}, a.Logger)
	case "csv", "parquet":
		return marketdata.NewFileProvider(data.Dir, name)
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProvider, name)
}

var intervalPattern = regexp.MustCompile(`^(\d+)(min|h)$`)

// polygonSpan maps a data.interval such as "daily" or "15min" onto a
// Polygon multiplier and timespan.
func polygonSpan(interval string) (int, string, error) {
	switch interval {
	case "", "daily", "day", "1d":
		return 1, "day", nil
	}
	m := intervalPattern.FindStringSubmatch(interval)
	if m == nil {
		return 0, "", apperrors.NewValidationError("data.interval", interval, "must be daily, <n>min or <n>h")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, "", apperrors.NewValidationError("data.interval", interval, "multiplier must be positive")
	}
	if m[2] == "h" {
		return n, "hour", nil
	}
	return n, "minute", nil
}

// Notifier builds the outbound notifier. The terminal channel is added for
// interactive commands.
func (a *App) Notifier(output *Output, terminal bool) notify.Notifier {
	mn := notify.NewMultiNotifier(a.Config.Notifications)
	if terminal && !output.IsJSON() {
		mn.AddChannel(notify.NewTerminalNotifier(output.Writer(), output.ColorEnabled()))
	}
	a.Logger.Debug().Strs("channels", mn.Channels()).Msg("Notifier ready")
	return mn
}

// Scanner wires a scanner over the configured provider and store.
func (a *App) Scanner(ctx context.Context, notifier notify.Notifier) (*scanner.Scanner, error) {
	provider, err := a.Provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("building %s provider: %w", a.Config.Data.Provider, err)
	}
	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	return scanner.New(provider, st, notifier, a.Config.Detector.Params, scanner.Options{
		Concurrency: a.Config.Scan.Concurrency,
		LatestOnly:  a.Config.Scan.LatestOnly,
		HistoryBars: a.Config.Scan.HistoryBars,
	}, a.Logger)
}

// Close releases everything the app opened, newest first.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	a.store = nil
	a.provider = nil
	return err
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
