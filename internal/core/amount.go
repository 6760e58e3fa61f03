package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an optional parsed numeric cell.
//
// Month cells and MONTO columns are free text: "50", "50,5", "1.250,00", "S/ 30".
// Parsing never fails loudly; Valid tells whether the cell held a number at all.
type Amount struct {
	Value decimal.Decimal
	Valid bool
}

// Positive reports whether the cell holds a number strictly greater than zero.
func (a Amount) Positive() bool {
	return a.Valid && a.Value.IsPositive()
}

// OrZero returns the value, or zero for an invalid cell.
func (a Amount) OrZero() decimal.Decimal {
	if !a.Valid {
		return decimal.Zero
	}
	return a.Value
}

// IsBlank reports whether a raw cell counts as missing.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "-"
}

// ParseAmount converts a numeric cell to an Amount.
//
// A comma is read as the decimal point. When both separators appear, the last one
// is the decimal point and the other is a thousands separator:
//
//	ParseAmount("12,5")     -> 12.5
//	ParseAmount("1.250,00") -> 1250
//	ParseAmount("1,250.00") -> 1250
//	ParseAmount("S/ 30")    -> 30
//	ParseAmount("abc")      -> invalid
func ParseAmount(s string) Amount {
	s = strings.TrimSpace(s)
	if IsBlank(s) {
		return Amount{}
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "S/."), "S/")
	s = strings.ReplaceAll(s, " ", "")

	comma := strings.LastIndexByte(s, ',')
	dot := strings.LastIndexByte(s, '.')
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" || strings.ContainsAny(s, "eE") {
		return Amount{}
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}
	}
	return Amount{Value: v, Valid: true}
}
