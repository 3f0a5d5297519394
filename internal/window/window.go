// Package window derives the attendance reporting window from "today".
package window

import (
	"time"

	"hrwatch/internal/model"
)

// DefaultLookbackDays is the trailing window size when none is configured.
const DefaultLookbackDays = 31

// Salary periods run from the 26th of one month to the 25th of the next.
const (
	salaryStartDay = 26
	salaryEndDay   = 25
)

// Mode selects how the window is derived.
type Mode struct {
	// SalaryPeriod selects the 26th-to-25th payroll window. When false the
	// window is the trailing LookbackDays ending today.
	SalaryPeriod bool
	LookbackDays int
}

// Compute returns the reporting window for today. Dates are truncated to
// midnight in today's location.
func Compute(today time.Time, mode Mode) model.Window {
	day := truncate(today)

	var start, end time.Time
	if mode.SalaryPeriod {
		start, end = salaryPeriod(day)
	} else {
		n := mode.LookbackDays
		if n <= 0 {
			n = DefaultLookbackDays
		}
		start, end = day.AddDate(0, 0, -n), day
	}

	return model.Window{
		Start:  start,
		End:    end,
		Months: MonthsBetween(start, end),
	}
}

func salaryPeriod(day time.Time) (time.Time, time.Time) {
	loc := day.Location()
	// time.Date normalizes month 0 and 13, which handles the year rollover.
	if day.Day() >= salaryStartDay {
		start := time.Date(day.Year(), day.Month(), salaryStartDay, 0, 0, 0, 0, loc)
		end := time.Date(day.Year(), day.Month()+1, salaryEndDay, 0, 0, 0, 0, loc)
		return start, end
	}
	start := time.Date(day.Year(), day.Month()-1, salaryStartDay, 0, 0, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), salaryEndDay, 0, 0, 0, 0, loc)
	return start, end
}

// MonthsBetween lists each (month, year) overlapping [start, end] once, in
// chronological order.
func MonthsBetween(start, end time.Time) []model.Month {
	if end.Before(start) {
		return nil
	}
	// Walk from day 1 so AddDate never overflows (Jan 31 + 1 month = Mar 3).
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, start.Location())

	var months []model.Month
	for !cur.After(last) {
		months = append(months, model.Month{Month: cur.Month(), Year: cur.Year()})
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
