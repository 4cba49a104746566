package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

// TerminalNotifier prints notifications to a terminal.
type TerminalNotifier struct {
	out          io.Writer
	mu           sync.Mutex
	enabled      bool
	bellEnabled  bool
	colorEnabled bool
}

// NewTerminalNotifier creates a TerminalNotifier writing to out.
func NewTerminalNotifier(out io.Writer, colorEnabled bool) *TerminalNotifier {
	return &TerminalNotifier{
		out:          out,
		enabled:      true,
		colorEnabled: colorEnabled,
	}
}

// SetBellEnabled enables or disables the terminal bell on new setups.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// SetEnabled enables or disables the notifier.
func (tn *TerminalNotifier) SetEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.enabled = enabled
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.enabled
}

// Send writes the notification.
func (tn *TerminalNotifier) Send(_ context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if !tn.enabled {
		return nil
	}
	if tn.bellEnabled && n.Type == NotificationSetups {
		fmt.Fprint(tn.out, "\a")
	}
	_, err := fmt.Fprintln(tn.out, FormatNotification(n, tn.colorEnabled))
	return err
}

// FormatNotification renders n for a terminal.
func FormatNotification(n Notification, colorEnabled bool) string {
	paint := func(c *color.Color, s string) string {
		if !colorEnabled {
			return s
		}
		c.EnableColor()
		return c.Sprint(s)
	}

	var sb strings.Builder
	timestamp := n.Timestamp.Format("15:04:05")

	switch n.Type {
	case NotificationSetups:
		sb.WriteString(paint(color.New(color.FgCyan, color.Bold), fmt.Sprintf("[%s] %s", timestamp, n.Title)))
		for _, s := range n.Setups {
			sb.WriteString("\n    ")
			sb.WriteString(formatSetupLine(s, paint))
		}
	case NotificationError:
		sb.WriteString(paint(color.New(color.FgRed), fmt.Sprintf("[%s] ERROR", timestamp)))
		sb.WriteString(" | " + n.Message)
	default:
		sb.WriteString(fmt.Sprintf("[%s] %s", timestamp, n.Title))
		if n.Message != "" {
			sb.WriteString(" | " + n.Message)
		}
	}
	return sb.String()
}

func formatSetupLine(s models.Setup, paint func(*color.Color, string) string) string {
	signal := s.Signal
	switch {
	case strings.Contains(signal, "Low RR"):
		signal = paint(color.New(color.FgYellow), signal)
	case s.BrokeOut:
		signal = paint(color.New(color.FgGreen, color.Bold), signal)
	}
	return fmt.Sprintf("%-6s %s | entry %s stop %s target %s | R:R %.2f",
		s.Ticker, signal,
		utils.FormatCurrency(s.BreakoutPrice),
		utils.FormatCurrency(s.StopLoss),
		utils.FormatCurrency(s.TakeProfit),
		s.RewardToRisk)
}
