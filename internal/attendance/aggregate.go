package attendance

import (
	"time"

	"hrwatch/internal/model"
)

// DefaultAbsentLabel is used when an absent tag carries no name.
const DefaultAbsentLabel = "Absent"

// MonthResult pairs a fetched payload with the month it was fetched for.
type MonthResult struct {
	Month   model.Month
	Payload *Payload
}

// ExtractAbsences returns one record per absent day inside w, in the order
// the portal listed them. The first absent tag of a day supplies its label.
func ExtractAbsences(p *Payload, w model.Window) []model.AbsenceRecord {
	if p == nil {
		return nil
	}

	var out []model.AbsenceRecord
	seen := make(map[string]bool)
	for _, day := range p.Data.DailyAttendanceSummary {
		d, ok := parseDay(day.ShiftDetails.Date, w.Start.Location())
		if !ok || !w.Contains(d) {
			continue
		}
		key := d.Format(model.DateLayout)
		if seen[key] {
			continue
		}

		label, absent := absentLabel(day.DailyAttendanceStatus)
		if !absent {
			continue
		}
		seen[key] = true
		out = append(out, model.AbsenceRecord{Date: key, Status: label})
	}
	return out
}

func absentLabel(statuses []DailyStatus) (string, bool) {
	for _, s := range statuses {
		if s.TagType != TagAbsent {
			continue
		}
		if s.TagName == "" {
			return DefaultAbsentLabel, true
		}
		return s.TagName, true
	}
	return "", false
}

// BuildSummary copies the portal-reported counts for month.
func BuildSummary(month model.Month, p *Payload) model.MonthlySummary {
	s := model.MonthlySummary{Month: month}
	if p == nil {
		return s
	}
	cd := p.Data.CountDetails
	s.Present = cd.PresentCount.Decimal
	s.Absent = cd.AbsentCount.Decimal
	s.Leave = cd.LeaveCount.Decimal
	s.Holiday = cd.HolidayCount.Decimal
	s.WeeklyOff = cd.WeeklyOffCount.Decimal
	s.PayableDays = cd.PayableDays.Decimal
	s.Regularization = cd.RegularizationCount.Decimal
	return s
}

// Aggregate merges per-month results, given in chronological month order,
// into one result. Totals sums the portal counts and is informational only.
func Aggregate(results []MonthResult, w model.Window) model.AggregateResult {
	res := model.AggregateResult{
		AbsentDays: []model.AbsenceRecord{},
		Summary:    make([]model.MonthlySummary, 0, len(results)),
	}
	seen := make(map[string]bool)

	for i, r := range results {
		for _, rec := range ExtractAbsences(r.Payload, w) {
			if seen[rec.Date] {
				continue
			}
			seen[rec.Date] = true
			res.AbsentDays = append(res.AbsentDays, rec)
		}

		s := BuildSummary(r.Month, r.Payload)
		res.Summary = append(res.Summary, s)
		if i == 0 {
			res.Totals = s
		} else {
			res.Totals = res.Totals.Add(s)
		}
	}

	res.TotalAbsent = len(res.AbsentDays)
	return res
}

func parseDay(raw string, loc *time.Location) (time.Time, bool) {
	if len(raw) < len(model.DateLayout) {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(model.DateLayout, raw[:len(model.DateLayout)], loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
