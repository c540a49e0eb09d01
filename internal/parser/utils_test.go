package parser

import (
	"math"
	"testing"
	"time"
)

func TestNormalizeUnit(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"м³":        "м3",
		"м3":        "м3",
		"М2":        "м2",
		"м²":        "м2",
		"тонна":     "тн",
		"тонны":     "тн",
		"т":         "тн",
		"кг":        "кг",
		"шт.":       "шт",
		"ч":         "час",
		"маш.-час":  "час",
		"пог. м":    "п.м",
		"п.м.":      "п.м",
		"м.п.":      "п.м",
		"м":         "м",
		"100 шт":    "шт",
		"ед. изм.":  "ед",
		"Бетон, м3": "м3",
	}
	for raw, want := range cases {
		got := NormalizeUnit(raw)
		if got == nil {
			t.Fatalf("NormalizeUnit(%q) = nil, want %q", raw, want)
		}
		if *got != want {
			t.Fatalf("NormalizeUnit(%q) = %q, want %q", raw, *got, want)
		}
	}

	for _, raw := range []string{"", "произвольный текст без единиц", "чел.", "компл"} {
		if got := NormalizeUnit(raw); got != nil {
			t.Fatalf("NormalizeUnit(%q) = %q, want nil", raw, *got)
		}
	}
}

func TestUnitOrFallback(t *testing.T) {
	t.Parallel()

	if got := UnitOrFallback("м³", 32, "ед"); got != "м3" {
		t.Fatalf("got %q", got)
	}
	if got := UnitOrFallback("компл", 32, "ед"); got != "компл" {
		t.Fatalf("short free text should pass through, got %q", got)
	}
	long := "устройство монолитных железобетонных конструкций перекрытий"
	if got := UnitOrFallback(long, 32, "ед"); got != "ед" {
		t.Fatalf("long free text should fall back, got %q", got)
	}
	if got := UnitOrFallback("", 32, "ед"); got != "ед" {
		t.Fatalf("empty should fall back, got %q", got)
	}
}

func TestToDate(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2025-01-15", "15.01.2025", "45672", "2025-01-15 00:00:00"} {
		got, ok := ToDate(raw)
		if !ok || !got.Equal(want) {
			t.Fatalf("ToDate(%q) = %v, %v", raw, got, ok)
		}
	}
	for _, raw := range []string{"", "10", "2025", "abc"} {
		if _, ok := ToDate(raw); ok {
			t.Fatalf("ToDate(%q) should fail", raw)
		}
	}
}

func TestNormalizeDate_Sentinels(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"0", "0.0", "1970-01-01", "01.01.1985", ""} {
		if got := NormalizeDate(raw); got != nil {
			t.Fatalf("NormalizeDate(%q) = %v, want nil", raw, got)
		}
	}
	got := NormalizeDate("2024-03-01")
	if got == nil || got.Year() != 2024 || got.Month() != time.March {
		t.Fatalf("unexpected %v", got)
	}
}

func TestToFloat(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"1 234,56":   1234.56,
		"1\u00a0000": 1000,
		"-50":        -50,
		"10":         10,
		"3.5":        3.5,
	}
	for raw, want := range cases {
		if got := ToFloat(raw, -1); math.Abs(got-want) > 1e-9 {
			t.Fatalf("ToFloat(%q) = %v, want %v", raw, got, want)
		}
	}
	for _, raw := range []string{"", "nan", "None", "-", "—", "abc", "NaN", "inf"} {
		if got := ToFloatNullable(raw); got != nil {
			t.Fatalf("ToFloatNullable(%q) = %v, want nil", raw, *got)
		}
		if got := ToFloat(raw, 7); got != 7 {
			t.Fatalf("ToFloat(%q) default = %v", raw, got)
		}
	}
}

func TestParseMonthCell(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"янв.25":       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"Февраль 2026": time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		"сент 2024":    time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		"45672":        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, ok := ParseMonthCell(raw)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseMonthCell(%q) = %v, %v; want %v", raw, got, ok, want)
		}
	}
	if _, ok := ParseMonthCell("Итого"); ok {
		t.Fatalf("Итого is not a month")
	}
}

func TestParseYear(t *testing.T) {
	t.Parallel()

	if y, ok := parseYear("2025"); !ok || y != 2025 {
		t.Fatalf("got %d %v", y, ok)
	}
	if y, ok := parseYear("План 2026 г."); !ok || y != 2026 {
		t.Fatalf("got %d %v", y, ok)
	}
	if _, ok := parseYear("1000"); ok {
		t.Fatalf("1000 is not a year")
	}
}
