package http

import (
	"html/template"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tablero/internal/core"
	"tablero/internal/storage"
)

// formatSoles renders an amount as "S/ 1,234.50".
func formatSoles(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	out := "S/ " + groupThousands(whole) + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// formatCount renders an integer with thousands separators.
func formatCount(n int) string {
	if n < 0 {
		return "-" + groupThousands(strconv.Itoa(-n))
	}
	return groupThousands(strconv.Itoa(n))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var importStatusLabels = map[storage.ImportStatus]string{
	storage.StatusPending:    "En cola",
	storage.StatusCompleted:  "Completada",
	storage.StatusFailed:     "Fallida",
	storage.StatusSuperseded: "Reemplazada",
}

func importStatusLabel(s storage.ImportStatus) string {
	if label, ok := importStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

var templateFuncs = template.FuncMap{
	"soles":       formatSoles,
	"count":       formatCount,
	"date":        core.FormatSpanishDate,
	"statusLabel": importStatusLabel,
}

// sanitizeInput trims s and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
