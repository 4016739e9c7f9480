package utils

import (
	"testing"
	"time"

	"bookingcore/internal/domain"
)

func TestFormatMoney(t *testing.T) {
	cases := map[domain.Money]string{
		0:         "Rs 0.00",
		5:         "Rs 0.05",
		123450:    "Rs 1,234.50",
		100000000: "Rs 1,000,000.00",
		-2500:     "-Rs 25.00",
	}
	for in, want := range cases {
		if got := FormatMoney(in); got != want {
			t.Errorf("FormatMoney(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMoney(t *testing.T) {
	cases := map[string]domain.Money{
		"Rs 1,234.50": 123450,
		"1234.5":      123450,
		"99":          9900,
		" 0.07 ":      7,
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		if err != nil {
			t.Fatalf("ParseMoney(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseMoney(%q) = %d, want %d", in, got, want)
		}
	}
	for _, bad := range []string{"", "rs", "1.234", "abc", "-5"} {
		if _, err := ParseMoney(bad); err == nil {
			t.Errorf("ParseMoney(%q) should fail", bad)
		}
	}
}

func TestSafeFilenamePart(t *testing.T) {
	if got := SafeFilenamePart("  BK 2025/03 "); got != "BK_2025_03" {
		t.Fatalf("got %q", got)
	}
	if got := SafeFilenamePart(""); got != "NA" {
		t.Fatalf("got %q", got)
	}
	if got := OrDash("  "); got != "-" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatDateTime(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	got := FormatDateTime(time.Date(2025, 3, 1, 13, 30, 0, 0, loc))
	if got != "2025-03-01 08:00" {
		t.Fatalf("got %q", got)
	}
}
