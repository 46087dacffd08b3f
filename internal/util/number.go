package util

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const TimestampLayout = "2006-01-02 15:04:05"

var (
	dateLayouts = []string{"2006-01-02", "2006/01/02", "20060102", "02/01/2006", "02-01-2006"}
	hourLayouts = []string{"15:04:05", "15:04", "15:04:05.000"}
	tsLayouts   = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.000",
		"2006-01-02 15:04",
		"2006/01/02 15:04:05",
		"2006/01/02 15:04",
		"20060102150405",
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
	}
)

// NormalizeID renders an integer id without leading zeros. Chain ids and
// barcodes can exceed int64, so parsing goes through big.Int.
func NormalizeID(input string) *string {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	out := n.String()
	return &out
}

func NormalizeDecimal(input string) *float64 {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func FormatDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NormalizeZip accepts exactly seven ASCII digits.
func NormalizeZip(input string) *string {
	s := strings.TrimSpace(input)
	if len(s) != 7 {
		return nil
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil
		}
	}
	return &s
}

// ParseDateTime combines separate date and hour fields. A blank hour means
// midnight.
func ParseDateTime(date, hour string) *time.Time {
	d := strings.TrimSpace(date)
	if d == "" {
		return nil
	}
	if ts := ParseTimestamp(d); ts != nil && strings.TrimSpace(hour) == "" {
		return ts
	}
	if i := strings.IndexAny(d, " T"); i > 0 {
		d = d[:i]
	}

	var day time.Time
	found := false
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, d); err == nil {
			day, found = t, true
			break
		}
	}
	if !found {
		return nil
	}

	h := strings.TrimSpace(hour)
	if i := strings.LastIndexAny(h, " T"); i >= 0 {
		h = h[i+1:]
	}
	if h == "" {
		return &day
	}
	for _, layout := range hourLayouts {
		if t, err := time.Parse(layout, h); err == nil {
			out := day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second)
			return &out
		}
	}
	return nil
}

func ParseTimestamp(input string) *time.Time {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func FormatTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(TimestampLayout)
}
