package model

import (
	"fmt"
	"strings"
)

// NormalizeCurrency upper-cases and trims an ISO-4217 code.
func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// IsCurrencyCode reports whether c looks like an ISO-4217 alpha code.
func IsCurrencyCode(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// FormatMinorUnits renders minor units as a two-decimal major amount, e.g. 999 -> "9.99".
func FormatMinorUnits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
