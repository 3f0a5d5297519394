package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for absence records and the
// remote currentCalendarDate parameter.
const DateLayout = "2006-01-02"

// Month identifies one calendar month. The remote summary endpoint is
// month-granular, so every fetch is keyed by a Month.
type Month struct {
	Month time.Month
	Year  int
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Window is the reporting window: an inclusive date range plus the ordered
// months it overlaps.
type Window struct {
	Start  time.Time
	End    time.Time
	Months []Month
}

// Contains reports whether day falls inside [Start, End] at calendar-date
// granularity. day is interpreted in the window's location.
func (w Window) Contains(day time.Time) bool {
	loc := w.Start.Location()
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return "[" + w.Start.Format(DateLayout) + ", " + w.End.Format(DateLayout) + "]"
}

// MonthlySummary holds the remote-reported counts for one fetched month.
// Counts are decimals because the portal reports half days.
type MonthlySummary struct {
	Month          Month
	Present        decimal.Decimal
	Absent         decimal.Decimal
	Leave          decimal.Decimal
	Holiday        decimal.Decimal
	WeeklyOff      decimal.Decimal
	PayableDays    decimal.Decimal
	Regularization decimal.Decimal
}

// Add returns the field-wise sum of s and o. The Month of the receiver is kept.
func (s MonthlySummary) Add(o MonthlySummary) MonthlySummary {
	return MonthlySummary{
		Month:          s.Month,
		Present:        s.Present.Add(o.Present),
		Absent:         s.Absent.Add(o.Absent),
		Leave:          s.Leave.Add(o.Leave),
		Holiday:        s.Holiday.Add(o.Holiday),
		WeeklyOff:      s.WeeklyOff.Add(o.WeeklyOff),
		PayableDays:    s.PayableDays.Add(o.PayableDays),
		Regularization: s.Regularization.Add(o.Regularization),
	}
}

// AbsenceRecord is one absent calendar day.
type AbsenceRecord struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

// AggregateResult is the outcome of a window check.
//
// TotalAbsent is always len(AbsentDays). Totals.Absent is what the portal
// reports for the whole months and may differ at window edges; both are shown.
type AggregateResult struct {
	AbsentDays  []AbsenceRecord
	TotalAbsent int
	Summary     []MonthlySummary
	Totals      MonthlySummary
}
