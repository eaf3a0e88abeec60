// Package report aggregates per-format byte savings from completed queue
// items into the structure the CLI renders.
package report

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"imagemill/internal/queue"
)

// Row is one line of the savings report.
type Row struct {
	Format         string  `json:"format"`
	Files          int     `json:"files"`
	OriginalBytes  int64   `json:"original_bytes"`
	OptimizedBytes int64   `json:"optimized_bytes"`
	SavedBytes     int64   `json:"saved_bytes"`
	SavedPercent   float64 `json:"saved_percent"`
}

// Report holds the per-format rows plus a grand total.
type Report struct {
	Rows  []Row `json:"rows"`
	Total Row   `json:"total"`
}

// Build converts queue savings aggregates into report rows with a total.
func Build(savings []queue.SavingsRow) Report {
	report := Report{Total: Row{Format: "total"}}
	for _, s := range savings {
		row := Row{
			Format:         s.Format,
			Files:          s.Files,
			OriginalBytes:  s.OriginalBytes,
			OptimizedBytes: s.OptimizedBytes,
			SavedBytes:     s.SavedBytes(),
			SavedPercent:   s.SavedPercent(),
		}
		report.Rows = append(report.Rows, row)

		report.Total.Files += s.Files
		report.Total.OriginalBytes += s.OriginalBytes
		report.Total.OptimizedBytes += s.OptimizedBytes
	}
	report.Total.SavedBytes = report.Total.OriginalBytes - report.Total.OptimizedBytes
	if report.Total.OriginalBytes > 0 {
		report.Total.SavedPercent = float64(report.Total.SavedBytes) / float64(report.Total.OriginalBytes) * 100
	}
	return report
}

var countPrinter = message.NewPrinter(language.English)

// FormatBytes renders a byte count for humans, e.g. "1.5 MB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int) string {
	return countPrinter.Sprintf("%d", n)
}

// FormatPercent renders a savings percentage with one decimal.
func FormatPercent(p float64) string {
	return countPrinter.Sprintf("%.1f%%", p)
}
