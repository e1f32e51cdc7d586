package catalog

import (
	"time"

	"github.com/STRATINT/eventcatalog/internal/localtime"
)

// Window is an inclusive start_at range in the catalog's home zone.
type Window struct {
	From  time.Time
	Until time.Time
}

// TodayWindow covers the local day containing now.
func TodayWindow(now time.Time) Window {
	return Window{From: localtime.StartOfDay(now), Until: localtime.EndOfDay(now)}
}

// TomorrowWindow covers the local day after now.
func TomorrowWindow(now time.Time) Window {
	next := localtime.StartOfDay(now).AddDate(0, 0, 1)
	return Window{From: next, Until: localtime.EndOfDay(next)}
}

// WeekWindow covers Monday to Sunday of the week containing now.
func WeekWindow(now time.Time) Window {
	day := localtime.StartOfDay(now)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	monday := day.AddDate(0, 0, -offset)
	return Window{From: monday, Until: localtime.EndOfDay(monday.AddDate(0, 0, 6))}
}

// WeekendWindow covers the coming Saturday and Sunday. On Saturday it
// starts today; on Sunday it is today only.
func WeekendWindow(now time.Time) Window {
	day := localtime.StartOfDay(now)
	switch day.Weekday() {
	case time.Saturday:
		return Window{From: day, Until: localtime.EndOfDay(day.AddDate(0, 0, 1))}
	case time.Sunday:
		return Window{From: day, Until: localtime.EndOfDay(day)}
	}
	saturday := day.AddDate(0, 0, int(time.Saturday-day.Weekday()))
	return Window{From: saturday, Until: localtime.EndOfDay(saturday.AddDate(0, 0, 1))}
}
