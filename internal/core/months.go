package core

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Month is a calendar month index, 1 (January) to 12 (December).
type Month int

const invalidMonthName = "Mes inválido"

var monthNames = [12]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// Extra spellings seen in municipal exports.
var monthAliases = map[string]Month{
	"SETIEMBRE": 9,
	"SEPT":      9,
	"SET":       9,
}

// AllMonths lists the twelve months in calendar order.
func AllMonths() []Month {
	out := make([]Month, 12)
	for i := range out {
		out[i] = Month(i + 1)
	}
	return out
}

func (m Month) Valid() bool {
	return m >= 1 && m <= 12
}

// Name is the Spanish month name, e.g. "Marzo".
func (m Month) Name() string {
	if !m.Valid() {
		return invalidMonthName
	}
	return monthNames[m-1]
}

// Column is the upper-case header used by wide exports, e.g. "MARZO".
func (m Month) Column() string {
	if !m.Valid() {
		return ""
	}
	return strings.ToUpper(monthNames[m-1])
}

// Short is the three-letter label used on chart axes.
func (m Month) Short() string {
	if !m.Valid() {
		return ""
	}
	return monthNames[m-1][:3]
}

// SpanishMonth returns the Spanish name for a month number, or "Mes inválido".
func SpanishMonth(n int) string {
	return Month(n).Name()
}

// MonthFromName resolves a month header or name regardless of case and accents.
func MonthFromName(s string) (Month, bool) {
	key := FoldKey(s)
	if key == "" {
		return 0, false
	}
	for i, name := range monthNames {
		full := strings.ToUpper(name)
		if key == full || key == full[:3] {
			return Month(i + 1), true
		}
	}
	if m, ok := monthAliases[key]; ok {
		return m, true
	}
	return 0, false
}

// FormatSpanishDate renders a date as "5 de Marzo de 2024".
func FormatSpanishDate(d Date) string {
	if d.IsEmpty() {
		return ""
	}
	return strconv.Itoa(d.Day()) + " de " + d.Month().Name() + " de " + strconv.Itoa(d.Year())
}

// FoldKey upper-cases s, strips accents, and collapses whitespace, so that
// "Fecha de  Ingreso" and "FECHA DE INGRESO" compare equal.
func FoldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(strings.Join(strings.Fields(folded), " "))
}
