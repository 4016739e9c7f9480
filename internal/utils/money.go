package utils

import (
	"fmt"
	"strconv"
	"strings"

	"bookingcore/internal/domain"
)

// FormatMoney renders minor units with thousand separators, e.g. "Rs 1,234.50".
func FormatMoney(amount domain.Money) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%sRs %s.%02d", sign, formatThousand(int64(amount)/100), int64(amount)%100)
}

// ParseMoney parses "Rs 1,234.50", "1234.5" or "1234" into minor units.
func ParseMoney(s string) (domain.Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "rs")
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q: more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || major < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || minor < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return domain.Money(major*100 + minor), nil
}

func formatThousand(n int64) string {
	if n == 0 {
		return "0"
	}
	str := strconv.FormatInt(n, 10)
	var out strings.Builder
	for i, c := range str {
		if i != 0 && (len(str)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(c)
	}
	return out.String()
}
