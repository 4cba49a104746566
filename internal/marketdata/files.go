package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"

	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

// csvBar is the on-disk CSV row. Dates may be YYYY-MM-DD, YYYY-MM-DD HH:MM:SS
// or RFC 3339.
type csvBar struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// parquetBar is the on-disk parquet row, timestamped in Unix milliseconds.
type parquetBar struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    int64   `parquet:"v"`
}

var csvDateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

func parseCSVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.ParseInLocation(layout, s, utils.MarketLocation); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ReadCSV decodes bars from r and sorts them by date.
func ReadCSV(r io.Reader) ([]models.Bar, error) {
	var rows []*csvBar
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode csv: %v", apperrors.ErrInvalidInput, err)
	}

	bars := make([]models.Bar, 0, len(rows))
	for i, row := range rows {
		date, err := parseCSVDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", apperrors.ErrInvalidInput, i+1, err)
		}
		bars = append(bars, models.Bar{
			Date: date, Open: row.Open, High: row.High, Low: row.Low, Close: row.Close, Volume: row.Volume,
		})
	}
	return sortBars(bars), nil
}

// WriteCSV encodes bars with a header row.
func WriteCSV(w io.Writer, bars []models.Bar) error {
	rows := make([]*csvBar, len(bars))
	for i, b := range bars {
		layout := "2006-01-02"
		if !b.Date.Equal(utils.CalendarDate(b.Date)) {
			layout = time.RFC3339
		}
		rows[i] = &csvBar{
			Date: b.Date.Format(layout), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		}
	}
	return gocsv.Marshal(rows, w)
}

// ReadParquet loads bars from a parquet file.
func ReadParquet(path string) ([]models.Bar, error) {
	rows, err := parquet.ReadFile[parquetBar](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrDataNotFound
		}
		return nil, fmt.Errorf("%w: read parquet: %v", apperrors.ErrInvalidInput, err)
	}

	bars := make([]models.Bar, len(rows))
	for i, r := range rows {
		bars[i] = models.Bar{
			Date:   time.UnixMilli(r.Timestamp).In(utils.MarketLocation),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return sortBars(bars), nil
}

// WriteParquet stores bars as a parquet file.
func WriteParquet(path string, bars []models.Bar) error {
	rows := make([]parquetBar, len(bars))
	for i, b := range bars {
		rows[i] = parquetBar{
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}

// FileProvider reads <dir>/<TICKER>.<format> snapshots.
type FileProvider struct {
	dir    string
	format string
}

// NewFileProvider creates a provider for csv or parquet snapshots in dir.
func NewFileProvider(dir, format string) (*FileProvider, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "csv" && format != "parquet" {
		return nil, apperrors.NewValidationError("data.format", format, "must be csv or parquet")
	}
	return &FileProvider{dir: dir, format: format}, nil
}

// Name returns the provider name.
func (f *FileProvider) Name() string {
	return f.format
}

// Path returns the snapshot path for ticker.
func (f *FileProvider) Path(ticker string) string {
	return filepath.Join(f.dir, strings.ToUpper(ticker)+"."+f.format)
}

// FetchBars loads the ticker's snapshot and filters it to [from, to].
func (f *FileProvider) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := f.Path(ticker)
	var (
		bars []models.Bar
		err  error
	)
	if f.format == "parquet" {
		bars, err = ReadParquet(path)
	} else {
		var file *os.File
		file, err = os.Open(path)
		if err == nil {
			defer file.Close()
			bars, err = ReadCSV(file)
		} else if errors.Is(err, fs.ErrNotExist) {
			err = apperrors.ErrDataNotFound
		}
	}
	if err != nil {
		return nil, apperrors.NewDataError("bars", ticker, "read "+path, err)
	}
	return filterRange(bars, from, to), nil
}

// Save writes bars to the ticker's snapshot path, creating dir if needed.
func (f *FileProvider) Save(ticker string, bars []models.Bar) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := f.Path(ticker)
	if f.format == "parquet" {
		return WriteParquet(path, bars)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	return WriteCSV(file, bars)
}
