package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CurrencyCode   = "PHP"
	CurrencySymbol = "₱"
)

var mobileNumberPattern = regexp.MustCompile(`^09\d{9}$`)

// IsValidMobileNumber reports whether s is a canonical mobile number:
// 11 digits starting with 09.
func IsValidMobileNumber(s string) bool {
	return mobileNumberPattern.MatchString(s)
}

// NormalizeMobileNumber strips surrounding whitespace. It does not rewrite
// other formats into the canonical one.
func NormalizeMobileNumber(s string) string {
	return strings.TrimSpace(s)
}

// FormatPeso renders an amount as ₱1,234.50.
func FormatPeso(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + CurrencySymbol + groupThousands(whole) + "." + frac
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

// HasCentavoPrecision reports whether amount has at most two decimal places.
func HasCentavoPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// UTCDay truncates t to midnight UTC of its calendar day.
func UTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats the UTC day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
