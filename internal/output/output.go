// Package output provides styled terminal output helpers (success, error,
// warning, catalog and purchase formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/streamzone/sz/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	moneyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyles = map[models.PurchaseStatus]lipgloss.Style{
		models.PurchasePending:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PurchaseApproved:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.PurchaseRejected:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.PurchaseCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Stdout receives all output; tests swap it
var Stdout io.Writer = os.Stdout

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Fprintln(Stdout, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Fprintln(Stdout, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Fprintln(Stdout, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Fprintln(Stdout, fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeConflict     = "conflict"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotLoggedIn  = "not_logged_in"
	ErrCodeDatabase     = "database_error"
	ErrCodeCloud        = "cloud_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{"error": map[string]string{"code": code, "message": message}})
	fmt.Fprintln(Stdout, string(data))
}

// Money formats cents as dollars
func Money(cents int64) string {
	return moneyStyle.Render(models.FormatCents(cents))
}

// FormatPurchaseStatus formats a status with color
func FormatPurchaseStatus(s models.PurchaseStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// SyncMark shows whether a row reached the cloud
func SyncMark(m models.SyncMeta) string {
	if m.Sincronizado {
		return successStyle.Render("synced")
	}
	return warningStyle.Render("pending")
}

// FormatService formats a service on one line
func FormatService(s *models.Service) string {
	parts := []string{
		titleStyle.Render(fmt.Sprintf("#%d", s.ID)),
		s.Name,
		Money(s.PriceCents),
	}
	if !s.Active {
		parts = append(parts, subtleStyle.Render("(inactive)"))
	}
	return strings.Join(parts, "  ")
}

// FormatServiceLong formats a service with its live offers
func FormatServiceLong(s *models.Service, category string, offers []models.Offer) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("#%d: %s", s.ID, s.Name)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Price: %s", Money(s.PriceCents))
	if category != "" {
		fmt.Fprintf(&sb, " | Category: %s", category)
	}
	if !s.Active {
		sb.WriteString(" | Inactive")
	}
	sb.WriteString("\n")
	if s.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(s.Description)
		sb.WriteString("\n")
	}
	if s.ImageKey != "" {
		fmt.Fprintf(&sb, "Image: %s\n", subtleStyle.Render(s.ImageKey))
	}
	if len(offers) > 0 {
		sb.WriteString(SectionHeader("offers"))
		for i := range offers {
			sb.WriteString("  ")
			sb.WriteString(FormatOffer(&offers[i]))
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "Sync: %s\n", SyncMark(s.SyncMeta))
	return sb.String()
}

// FormatOffer formats an offer on one line
func FormatOffer(o *models.Offer) string {
	parts := []string{
		titleStyle.Render(fmt.Sprintf("#%d", o.ID)),
		o.Title,
		fmt.Sprintf("-%d%%", o.DiscountPercent),
		Money(o.PriceCents),
	}
	if !o.EndsAt.IsZero() {
		parts = append(parts, subtleStyle.Render("until "+o.EndsAt.Local().Format("2006-01-02")))
	}
	return strings.Join(parts, "  ")
}

// FormatPurchase formats a purchase on one line
func FormatPurchase(p *models.Purchase, serviceName string) string {
	if serviceName == "" {
		serviceName = fmt.Sprintf("service %d", p.ServiceID)
	}
	parts := []string{
		titleStyle.Render(fmt.Sprintf("#%d", p.ID)),
		serviceName,
		Money(p.AmountCents),
		FormatPurchaseStatus(p.Status),
		subtleStyle.Render(FormatTimeAgo(p.CreatedAt)),
	}
	return strings.Join(parts, "  ")
}

// FormatNotification formats a notification on one line
func FormatNotification(n *models.Notification) string {
	mark := "●"
	if n.Read {
		mark = subtleStyle.Render("○")
	}
	return fmt.Sprintf("%s %s  %s: %s  %s", mark, titleStyle.Render(fmt.Sprintf("#%d", n.ID)),
		n.Title, n.Message, subtleStyle.Render(FormatTimeAgo(n.CreatedAt)))
}

// Table renders rows under a header with a rounded border
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(subtleStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}
