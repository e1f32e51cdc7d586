// Package localtime pins the wall-clock zone used for fingerprints, source
// windows and catalog day boundaries.
package localtime

import (
	"time"
	_ "time/tzdata" // zone database for minimal images
)

// ZoneName is the catalog's home zone.
const ZoneName = "Europe/Prague"

var zone = mustLoad(ZoneName)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("localtime: " + err.Error())
	}
	return loc
}

// Zone returns the catalog's home location.
func Zone() *time.Location {
	return zone
}

// In converts t to the catalog's home zone.
func In(t time.Time) time.Time {
	return t.In(zone)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	l := t.In(zone)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, zone)
}

// EndOfDay returns the last representable second of the day containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Second)
}
