package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stock-pattern/internal/models"
	"stock-pattern/internal/notify"
	"stock-pattern/internal/reports"
	"stock-pattern/internal/scanner"
	"stock-pattern/internal/store"
)

// handleGetStockSetups runs a scan. tickers may repeat or be comma-separated;
// an absent list scans the default watchlist.
func (s *Server) handleGetStockSetups(c *gin.Context) {
	tickers := c.QueryArray("tickers")
	if len(tickers) == 0 {
		tickers = s.defaultTickers
	}

	req := scanner.Request{Tickers: tickers}
	if raw := c.Query("lookback"); raw != "" {
		lookback, err := strconv.Atoi(raw)
		if err != nil || lookback <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lookback must be a positive integer"})
			return
		}
		req.Lookback = lookback
	}

	ctx := c.Request.Context()
	if s.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.scanTimeout)
		defer cancel()
	}

	res, err := s.scanner.Run(ctx, req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if len(res.Setups) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "No setups were found for any ticker.", "runId": res.RunID})
		return
	}

	items := make([]notify.TickerSetup, len(res.Setups))
	for i, setup := range res.Setups {
		items[i] = notify.TickerSetup{Ticker: setup.Ticker, Setup: setup}
	}
	if len(res.Errors) > 0 {
		c.Header("X-Scan-Errors", strconv.Itoa(len(res.Errors)))
	}
	c.Header("X-Scan-Run-Id", res.RunID)
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleGetExistingSetups(c *gin.Context) {
	setups, err := s.store.GetOpenSetups(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if len(setups) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "No setups found."})
		return
	}
	c.JSON(http.StatusOK, setups)
}

func (s *Server) handleGetSetups(c *gin.Context) {
	start, ok := parseDateQuery(c, "from")
	if !ok {
		return
	}
	end, ok := parseDateQuery(c, "to")
	if !ok {
		return
	}
	if !end.IsZero() {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}

	filter := store.SetupFilter{
		Ticker:    strings.ToUpper(strings.TrimSpace(c.Query("ticker"))),
		StartDate: start,
		EndDate:   end,
		OpenOnly:  c.Query("open") == "true",
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	setups, err := s.store.GetSetups(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, setups)
}

// finalResultRequest is the body of saveToFinalResults.
type finalResultRequest struct {
	StockSetupID    int64   `json:"stockSetupId"`
	IsActive        bool    `json:"isActive"`
	IsFalsePositive bool    `json:"isFalsePositive"`
	PriceSoldAt     float64 `json:"priceSoldAt"`
}

func (s *Server) handleSaveFinalResult(c *gin.Context) {
	var req finalResultRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StockSetupID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data."})
		return
	}

	result := &models.FinalResult{
		StockSetupID:    req.StockSetupID,
		DateUpdated:     time.Now(),
		PriceSoldAt:     req.PriceSoldAt,
		IsActive:        req.IsActive,
		IsFalsePositive: req.IsFalsePositive,
	}
	if err := s.store.FinalizeSetup(c.Request.Context(), result); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Data saved successfully.", "result": result})
}

func (s *Server) finalResultRows(c *gin.Context) ([]reports.FinalResultRow, bool) {
	resolved, err := s.store.GetResolvedSetups(c.Request.Context(), store.ResultFilter{
		Ticker:     strings.ToUpper(strings.TrimSpace(c.Query("ticker"))),
		ActiveOnly: true,
	})
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return reports.FinalResults(resolved), true
}

func (s *Server) handleFinalResultsReport(c *gin.Context) {
	rows, ok := s.finalResultRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleSummaryReport(c *gin.Context) {
	rows, ok := s.finalResultRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, reports.Summarize(rows))
}

func (s *Server) handleGetJournal(c *gin.Context) {
	entries, err := s.store.GetJournal(c.Request.Context(), store.JournalFilter{ActiveOnly: true})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleSaveJournal(c *gin.Context) {
	var entry models.JournalEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid journal entry."})
		return
	}
	if entry.ID == 0 {
		entry.IsActive = true
	}
	if err := s.store.SaveJournalEntry(c.Request.Context(), &entry); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDeactivateJournal(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}
	if err := s.store.DeactivateJournalEntry(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
