package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
)

// dialect captures the few SQL differences between supported drivers.
type dialect struct {
	name       string
	positional bool
	schema     string
}

// SQLStore implements DataStore over database/sql.
type SQLStore struct {
	db        *sql.DB
	dialect   dialect
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

var _ DataStore = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	store := &SQLStore{
		db:        db,
		dialect:   d,
		syncTimes: make(map[string]time.Time),
	}

	if _, err := db.Exec(d.schema); err != nil {
		db.Close()
		return nil, dbErr("initialize schema", err)
	}

	return store, nil
}

// Driver returns the dialect name.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// rebind rewrites ? placeholders for drivers that use $n.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dbErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %v", op, apperrors.ErrDatabase, err)
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dbErr("ping database", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Bars Methods
// ============================================================================

// SaveBars upserts bars for a ticker.
func (s *SQLStore) SaveBars(ctx context.Context, ticker string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO bars (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume
	`))
	if err != nil {
		return dbErr("prepare statement", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return dbErr("insert bar", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbErr("commit transaction", err)
	}
	return nil
}

// GetBars retrieves bars in [from, to] ordered by date.
func (s *SQLStore) GetBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`), ticker, from, to)
	if err != nil {
		return nil, dbErr("query bars", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, dbErr("scan bar", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate bars", err)
	}
	return bars, nil
}

// GetBarsFreshness returns the date of the most recent stored bar.
func (s *SQLStore) GetBarsFreshness(ctx context.Context, ticker string) (time.Time, error) {
	var latest time.Time
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT date FROM bars WHERE ticker = ? ORDER BY date DESC LIMIT 1
	`), ticker).Scan(&latest)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, dbErr("get bars freshness", err)
	}
	return latest, nil
}

// ============================================================================
// Setup Methods
// ============================================================================

const setupColumns = `id, ticker, date, close, high, low, volume, vol_ma, trend, setup, signal, pattern,
	resistance_level, breakout_price, broke_out, is_finalized, compression, high_slope, low_slope,
	smoothed_atr, stop_loss, take_profit, risk_per_share, reward_per_share, reward_to_risk`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSetup(r rowScanner, st *models.Setup) error {
	return r.Scan(&st.ID, &st.Ticker, &st.Date, &st.Close, &st.High, &st.Low, &st.Volume, &st.VolMA,
		&st.Trend, &st.Setup, &st.Signal, &st.Pattern, &st.ResistanceLevel, &st.BreakoutPrice,
		&st.BrokeOut, &st.IsFinalized, &st.Compression, &st.HighSlope, &st.LowSlope, &st.SmoothedATR,
		&st.StopLoss, &st.TakeProfit, &st.RiskPerShare, &st.RewardPerShare, &st.RewardToRisk)
}

// SaveSetups inserts setups and returns them with IDs assigned. A setup
// whose (ticker, date) already exists keeps its stored ID and is not
// overwritten.
func (s *SQLStore) SaveSetups(ctx context.Context, setups []models.Setup) ([]models.Setup, error) {
	if len(setups) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr("begin transaction", err)
	}
	defer tx.Rollback()

	insert := s.rebind(`
		INSERT INTO stock_setups (ticker, date, close, high, low, volume, vol_ma, trend, setup, signal, pattern,
			resistance_level, breakout_price, broke_out, is_finalized, compression, high_slope, low_slope,
			smoothed_atr, stop_loss, take_profit, risk_per_share, reward_per_share, reward_to_risk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO NOTHING
		RETURNING id
	`)
	lookup := s.rebind(`SELECT id FROM stock_setups WHERE ticker = ? AND date = ?`)

	saved := make([]models.Setup, len(setups))
	for i, st := range setups {
		err := tx.QueryRowContext(ctx, insert,
			st.Ticker, st.Date, st.Close, st.High, st.Low, st.Volume, st.VolMA, st.Trend, st.Setup,
			st.Signal, st.Pattern, st.ResistanceLevel, st.BreakoutPrice, st.BrokeOut, st.IsFinalized,
			st.Compression, st.HighSlope, st.LowSlope, st.SmoothedATR, st.StopLoss, st.TakeProfit,
			st.RiskPerShare, st.RewardPerShare, st.RewardToRisk,
		).Scan(&st.ID)
		if err == sql.ErrNoRows {
			err = tx.QueryRowContext(ctx, lookup, st.Ticker, st.Date).Scan(&st.ID)
		}
		if err != nil {
			return nil, dbErr("insert setup", err)
		}
		saved[i] = st
	}

	if err := tx.Commit(); err != nil {
		return nil, dbErr("commit transaction", err)
	}
	return saved, nil
}

// GetSetups queries setups, newest first.
func (s *SQLStore) GetSetups(ctx context.Context, filter SetupFilter) ([]models.Setup, error) {
	query := "SELECT " + setupColumns + " FROM stock_setups WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if !filter.StartDate.IsZero() {
		query += " AND date >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND date <= ?"
		args = append(args, filter.EndDate)
	}
	if filter.OpenOnly {
		query += " AND is_finalized = ?"
		args = append(args, false)
	}

	query += " ORDER BY date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, dbErr("query setups", err)
	}
	defer rows.Close()

	setups := []models.Setup{}
	for rows.Next() {
		var st models.Setup
		if err := scanSetup(rows, &st); err != nil {
			return nil, dbErr("scan setup", err)
		}
		setups = append(setups, st)
	}
	return setups, rows.Err()
}

// GetOpenSetups returns every setup not yet finalized, newest first.
func (s *SQLStore) GetOpenSetups(ctx context.Context) ([]models.Setup, error) {
	return s.GetSetups(ctx, SetupFilter{OpenOnly: true})
}

// GetSetupByID returns one setup or ErrSetupNotFound.
func (s *SQLStore) GetSetupByID(ctx context.Context, id int64) (*models.Setup, error) {
	var st models.Setup
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+setupColumns+" FROM stock_setups WHERE id = ?"), id)
	if err := scanSetup(row, &st); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrapf(apperrors.ErrSetupNotFound, "setup %d", id)
		}
		return nil, dbErr("get setup", err)
	}
	return &st, nil
}

// GetSetupDates returns the dates of every stored setup for ticker, finalized
// or not, keyed at granularity g.
func (s *SQLStore) GetSetupDates(ctx context.Context, ticker string, g models.DateGranularity) (models.DateSet, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT date FROM stock_setups WHERE ticker = ?`), ticker)
	if err != nil {
		return models.DateSet{}, dbErr("query setup dates", err)
	}
	defer rows.Close()

	dates := models.NewDateSet(g)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return models.DateSet{}, dbErr("scan setup date", err)
		}
		dates.Add(d)
	}
	return dates, rows.Err()
}

// ============================================================================
// Final Result Methods
// ============================================================================

// FinalizeSetup records a result and marks its setup finalized in one
// transaction. Finalizing twice is rejected.
func (s *SQLStore) FinalizeSetup(ctx context.Context, result *models.FinalResult) error {
	if result.StockSetupID <= 0 {
		return apperrors.NewValidationError("stockSetupId", result.StockSetupID, "must be positive")
	}
	if result.IsActive && result.PriceSoldAt <= 0 {
		return apperrors.NewValidationError("priceSoldAt", result.PriceSoldAt, "must be positive for a traded setup")
	}
	if result.DateUpdated.IsZero() {
		result.DateUpdated = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin transaction", err)
	}
	defer tx.Rollback()

	var finalized bool
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT is_finalized FROM stock_setups WHERE id = ?`), result.StockSetupID).Scan(&finalized)
	if err == sql.ErrNoRows {
		return apperrors.Wrapf(apperrors.ErrSetupNotFound, "setup %d", result.StockSetupID)
	}
	if err != nil {
		return dbErr("load setup", err)
	}
	if finalized {
		return apperrors.NewValidationError("stockSetupId", result.StockSetupID, "setup already finalized")
	}

	err = tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO final_results (stock_setup_id, date_updated, price_sold_at, is_active, is_false_positive)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), result.StockSetupID, result.DateUpdated, result.PriceSoldAt, result.IsActive, result.IsFalsePositive).Scan(&result.ID)
	if err != nil {
		return dbErr("insert final result", err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE stock_setups SET is_finalized = ? WHERE id = ?`), true, result.StockSetupID); err != nil {
		return dbErr("finalize setup", err)
	}

	if err := tx.Commit(); err != nil {
		return dbErr("commit transaction", err)
	}
	return nil
}

// GetResolvedSetups joins final results with their setups, newest result first.
func (s *SQLStore) GetResolvedSetups(ctx context.Context, filter ResultFilter) ([]models.ResolvedSetup, error) {
	cols := strings.ReplaceAll(setupColumns, "\n", " ")
	prefixed := make([]string, 0, 25)
	for _, c := range strings.Split(cols, ",") {
		prefixed = append(prefixed, "s."+strings.TrimSpace(c))
	}

	query := "SELECT " + strings.Join(prefixed, ", ") + `,
		r.id, r.stock_setup_id, r.date_updated, r.price_sold_at, r.is_active, r.is_false_positive
		FROM final_results r JOIN stock_setups s ON s.id = r.stock_setup_id WHERE 1=1`
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND s.ticker = ?"
		args = append(args, filter.Ticker)
	}
	if filter.ActiveOnly {
		query += " AND r.is_active = ?"
		args = append(args, true)
	}
	if !filter.StartDate.IsZero() {
		query += " AND r.date_updated >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND r.date_updated <= ?"
		args = append(args, filter.EndDate)
	}
	query += " ORDER BY r.date_updated DESC, r.id DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, dbErr("query final results", err)
	}
	defer rows.Close()

	resolved := []models.ResolvedSetup{}
	for rows.Next() {
		var rs models.ResolvedSetup
		st, r := &rs.Setup, &rs.Result
		if err := rows.Scan(&st.ID, &st.Ticker, &st.Date, &st.Close, &st.High, &st.Low, &st.Volume, &st.VolMA,
			&st.Trend, &st.Setup, &st.Signal, &st.Pattern, &st.ResistanceLevel, &st.BreakoutPrice,
			&st.BrokeOut, &st.IsFinalized, &st.Compression, &st.HighSlope, &st.LowSlope, &st.SmoothedATR,
			&st.StopLoss, &st.TakeProfit, &st.RiskPerShare, &st.RewardPerShare, &st.RewardToRisk,
			&r.ID, &r.StockSetupID, &r.DateUpdated, &r.PriceSoldAt, &r.IsActive, &r.IsFalsePositive); err != nil {
			return nil, dbErr("scan final result", err)
		}
		resolved = append(resolved, rs)
	}
	return resolved, rows.Err()
}

// ============================================================================
// Journal Methods
// ============================================================================

// SaveJournalEntry inserts a new entry, or updates it when ID is set.
func (s *SQLStore) SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error {
	if strings.TrimSpace(entry.EntrySubject) == "" {
		return apperrors.NewValidationError("entrySubject", entry.EntrySubject, "must not be empty")
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now()
	}

	if entry.ID > 0 {
		res, err := s.db.ExecContext(ctx, s.rebind(`
			UPDATE journal_entries SET date = ?, entry_subject = ?, entry_body = ?, is_active = ? WHERE id = ?
		`), entry.Date, entry.EntrySubject, entry.EntryBody, entry.IsActive, entry.ID)
		if err != nil {
			return dbErr("update journal entry", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.Wrapf(apperrors.ErrDataNotFound, "journal entry %d", entry.ID)
		}
		return nil
	}

	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO journal_entries (date, entry_subject, entry_body, is_active)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), entry.Date, entry.EntrySubject, entry.EntryBody, entry.IsActive).Scan(&entry.ID)
	if err != nil {
		return dbErr("save journal entry", err)
	}
	return nil
}

// GetJournal queries journal entries, newest first.
func (s *SQLStore) GetJournal(ctx context.Context, filter JournalFilter) ([]models.JournalEntry, error) {
	query := "SELECT id, date, entry_subject, entry_body, is_active FROM journal_entries WHERE 1=1"
	args := []interface{}{}

	if filter.ActiveOnly {
		query += " AND is_active = ?"
		args = append(args, true)
	}
	if !filter.StartDate.IsZero() {
		query += " AND date >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND date <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, dbErr("query journal", err)
	}
	defer rows.Close()

	entries := []models.JournalEntry{}
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.EntrySubject, &e.EntryBody, &e.IsActive); err != nil {
			return nil, dbErr("scan journal entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeactivateJournalEntry hides an entry without deleting it.
func (s *SQLStore) DeactivateJournalEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE journal_entries SET is_active = ? WHERE id = ?`), false, id)
	if err != nil {
		return dbErr("deactivate journal entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrDataNotFound, "journal entry %d", id)
	}
	return nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow(s.rebind(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`), dataType).Scan(&raw)
	if err != nil {
		return time.Time{}
	}
	lastSync, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(s.rebind(`
		INSERT INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (data_type) DO UPDATE SET last_sync = excluded.last_sync, updated_at = excluded.updated_at
	`), dataType, t.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return dbErr("set last sync", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}
