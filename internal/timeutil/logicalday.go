// Package timeutil centralizes the logical-day and reminder-window
// arithmetic shared by every day-boundary-sensitive scheduling rule.
package timeutil

import (
	"time"

	"github.com/studyloop/reminder-service/internal/models"
)

// NightOwlCutoff is the local hour before which activity is attributed
// to the previous logical day. A session finished at 01:30 still counts
// for yesterday's streak.
const NightOwlCutoff = 3

// LogicalDate returns the civil date (YYYY-MM-DD) of t in loc, adjusted
// by the night-owl grace period.
func LogicalDate(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	if lt.Hour() < NightOwlCutoff {
		lt = lt.AddDate(0, 0, -1)
	}
	return lt.Format("2006-01-02")
}

// SameLogicalDay reports whether a and b fall on the same logical day
// in loc.
func SameLogicalDay(a, b time.Time, loc *time.Location) bool {
	return LogicalDate(a, loc) == LogicalDate(b, loc)
}

// BucketForHour classifies a local hour of day into a reminder window.
func BucketForHour(hour int) models.Window {
	switch {
	case hour >= 5 && hour <= 11:
		return models.WindowMorning
	case hour >= 12 && hour <= 16:
		return models.WindowAfternoon
	case hour >= 17 && hour <= 20:
		return models.WindowEvening
	default:
		return models.WindowNight
	}
}

// SendHour maps a window to the local hour daily reminders fire at.
func SendHour(w models.Window) int {
	switch w {
	case models.WindowMorning:
		return 9
	case models.WindowAfternoon:
		return 14
	case models.WindowEvening:
		return 19
	default:
		return 22
	}
}

// AtHour returns the time on now's local calendar day at the given hour
// in loc.
func AtHour(now time.Time, hour int, loc *time.Location) time.Time {
	lt := now.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), hour, 0, 0, 0, loc)
}

// SendAtForWindow computes the send time for a daily reminder at now.
// If the window hour has already passed, the reminder is due
// immediately rather than slipping to tomorrow.
func SendAtForWindow(now time.Time, w models.Window, loc *time.Location) time.Time {
	at := AtHour(now, SendHour(w), loc)
	if at.Before(now) {
		return now
	}
	return at
}
