package calendar

import (
	"testing"
	"time"

	"hbdbot/pkg/hbd"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDayOffset(t *testing.T) {
	tests := []struct {
		name     string
		today    time.Time
		birthday hbd.MonthDay
		want     int
	}{
		{"birthday today", date(2025, 6, 15), hbd.MonthDay{Month: 6, Day: 15}, 0},
		{"birthday yesterday", date(2025, 6, 15), hbd.MonthDay{Month: 6, Day: 14}, 1},
		{"birthday tomorrow", date(2025, 6, 15), hbd.MonthDay{Month: 6, Day: 16}, -1},
		{"two days ago", date(2025, 6, 15), hbd.MonthDay{Month: 6, Day: 13}, 2},
		{"leap day on march 1 of common year", date(2025, 3, 1), hbd.MonthDay{Month: 2, Day: 29}, 0},
		{"leap day seen from feb 28 of common year", date(2025, 2, 28), hbd.MonthDay{Month: 2, Day: 29}, -1},
		{"leap day in leap year", date(2024, 2, 29), hbd.MonthDay{Month: 2, Day: 29}, 0},
		{"leap day seen from march 1 of leap year", date(2024, 3, 1), hbd.MonthDay{Month: 2, Day: 29}, 1},
		{"new year tomorrow", date(2025, 12, 31), hbd.MonthDay{Month: 1, Day: 1}, -1},
		{"new year tomorrow in leap year", date(2024, 12, 31), hbd.MonthDay{Month: 1, Day: 1}, -1},
		{"new year eve yesterday", date(2025, 1, 1), hbd.MonthDay{Month: 12, Day: 31}, 1},
		{"new year eve yesterday in leap year", date(2024, 1, 1), hbd.MonthDay{Month: 12, Day: 31}, 1},
		{"january 1 two days ahead", date(2025, 12, 30), hbd.MonthDay{Month: 1, Day: 1}, -2},
		{"far away birthday stays naive", date(2025, 6, 15), hbd.MonthDay{Month: 1, Day: 15}, 151},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DayOffset(tt.today, tt.birthday)
			if !ok {
				t.Fatalf("DayOffset() reported no birthday for %v", tt.birthday)
			}
			if got != tt.want {
				t.Errorf("DayOffset(%s, %s) = %d, want %d", tt.today.Format(time.DateOnly), tt.birthday, got, tt.want)
			}
		})
	}
}

func TestDayOffsetNoBirthday(t *testing.T) {
	if _, ok := DayOffset(date(2025, 6, 15), hbd.MonthDay{}); ok {
		t.Error("DayOffset() should report absent birthday")
	}
	if IsToday(date(2025, 6, 15), hbd.MonthDay{}) {
		t.Error("IsToday() should be false without a birthday")
	}
}

// TestDayOffsetNeighbours walks three years, including a leap year and two
// year boundaries, and checks today/yesterday/tomorrow on every day.
func TestDayOffsetNeighbours(t *testing.T) {
	for day := date(2023, 1, 1); day.Year() < 2026; day = day.AddDate(0, 0, 1) {
		md := func(t time.Time) hbd.MonthDay { return hbd.MonthDay{Month: t.Month(), Day: t.Day()} }

		if got, _ := DayOffset(day, md(day)); got != 0 {
			t.Errorf("%s: birthday today = %d, want 0", day.Format(time.DateOnly), got)
		}
		if got, _ := DayOffset(day, md(day.AddDate(0, 0, -1))); got != 1 {
			t.Errorf("%s: birthday yesterday = %d, want 1", day.Format(time.DateOnly), got)
		}
		if got, _ := DayOffset(day, md(day.AddDate(0, 0, 1))); got != -1 {
			t.Errorf("%s: birthday tomorrow = %d, want -1", day.Format(time.DateOnly), got)
		}
		if !IsToday(day, md(day)) {
			t.Errorf("%s: IsToday() = false for same day", day.Format(time.DateOnly))
		}
	}
}

func TestIsLeapYear(t *testing.T) {
	tests := map[int]bool{1900: false, 2000: true, 2023: false, 2024: true, 2100: false}
	for year, want := range tests {
		if got := IsLeapYear(year); got != want {
			t.Errorf("IsLeapYear(%d) = %v, want %v", year, got, want)
		}
	}
}

func TestTodayAndSameDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 16:30 UTC is already the next day in Tokyo.
	now := time.Date(2025, 6, 15, 16, 30, 0, 0, time.UTC)

	today := Today(now, tokyo)
	if today.Day() != 16 || today.Hour() != 0 {
		t.Errorf("Today() = %v, want midnight of June 16 JST", today)
	}
	if !SameDay(now, time.Date(2025, 6, 16, 1, 0, 0, 0, tokyo), tokyo) {
		t.Error("SameDay() should treat both instants as June 16 JST")
	}
	if SameDay(now, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), tokyo) {
		t.Error("SameDay() should differ across the JST midnight")
	}
}
