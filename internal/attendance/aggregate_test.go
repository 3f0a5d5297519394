package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrwatch/internal/model"
	"hrwatch/internal/window"
)

func day(date string, statuses ...DailyStatus) DailySummary {
	return DailySummary{
		ShiftDetails:          ShiftDetails{Date: date + "T00:00:00"},
		DailyAttendanceStatus: statuses,
	}
}

func absent(name string) DailyStatus { return DailyStatus{TagType: TagAbsent, TagName: name} }
func present() DailyStatus           { return DailyStatus{TagType: TagPresent, TagName: "Present"} }
func leave(name string) DailyStatus  { return DailyStatus{TagType: TagLeave, TagName: name} }
func weeklyOff() DailyStatus         { return DailyStatus{TagType: TagWeeklyOff, TagName: "Weekly Off"} }

func count(v string) Count { return Count{decimal.RequireFromString(v)} }

func mkWindow(start, end string) model.Window {
	s, _ := time.Parse(model.DateLayout, start)
	e, _ := time.Parse(model.DateLayout, end)
	return model.Window{Start: s, End: e, Months: window.MonthsBetween(s, e)}
}

func TestExtractAbsences(t *testing.T) {
	w := mkWindow("2025-01-26", "2025-02-25")
	p := &Payload{Data: PayloadData{DailyAttendanceSummary: []DailySummary{
		day("2025-01-25", absent("Absent")),        // before the window
		day("2025-01-27", present()),               // present
		day("2025-01-28", leave("Casual Leave")),   // leave is not absence
		day("2025-01-29", weeklyOff(), absent("")), // unnamed absent tag
		day("2025-01-30", absent("Unpaid"), absent("Absent")),
		day("2025-01-30", absent("Duplicate")), // same date again
		day("not-a-date", absent("Absent")),
		day("2025-02-26", absent("Absent")), // after the window
	}}}

	got := ExtractAbsences(p, w)
	assert.Equal(t, []model.AbsenceRecord{
		{Date: "2025-01-29", Status: DefaultAbsentLabel},
		{Date: "2025-01-30", Status: "Unpaid"},
	}, got)
}

func TestExtractAbsencesEdgesInclusive(t *testing.T) {
	w := mkWindow("2025-01-26", "2025-02-25")
	p := &Payload{Data: PayloadData{DailyAttendanceSummary: []DailySummary{
		{ShiftDetails: ShiftDetails{Date: "2025-01-26"}, DailyAttendanceStatus: []DailyStatus{absent("A")}},
		day("2025-02-25", absent("B")),
	}}}
	got := ExtractAbsences(p, w)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-01-26", got[0].Date)
	assert.Equal(t, "2025-02-25", got[1].Date)
}

func TestExtractAbsencesNilPayload(t *testing.T) {
	assert.Empty(t, ExtractAbsences(nil, mkWindow("2025-01-01", "2025-01-31")))
	assert.Empty(t, ExtractAbsences(&Payload{}, mkWindow("2025-01-01", "2025-01-31")))
}

func TestAggregateSalaryWindow(t *testing.T) {
	w := mkWindow("2025-01-26", "2025-02-25")
	jan := &Payload{Data: PayloadData{
		DailyAttendanceSummary: []DailySummary{
			day("2025-01-10", absent("Absent")), // month-level only, outside window
			day("2025-01-25", absent("Absent")), // one day before the window
			day("2025-01-28", absent("Absent")),
		},
		CountDetails: CountDetails{PresentCount: count("20"), AbsentCount: count("2"), PayableDays: count("29.5")},
	}}
	feb := &Payload{Data: PayloadData{
		DailyAttendanceSummary: []DailySummary{
			day("2025-02-20", absent("Absent")),
			day("2025-02-27", absent("Absent")),
		},
		CountDetails: CountDetails{PresentCount: count("18"), AbsentCount: count("1"), HolidayCount: count("1"), PayableDays: count("28")},
	}}

	res := Aggregate([]MonthResult{
		{Month: model.Month{Month: time.January, Year: 2025}, Payload: jan},
		{Month: model.Month{Month: time.February, Year: 2025}, Payload: feb},
	}, w)

	assert.Equal(t, 2, res.TotalAbsent)
	assert.Equal(t, []model.AbsenceRecord{
		{Date: "2025-01-28", Status: "Absent"},
		{Date: "2025-02-20", Status: "Absent"},
	}, res.AbsentDays)

	require.Len(t, res.Summary, 2)
	assert.Equal(t, time.January, res.Summary[0].Month.Month)
	assert.Equal(t, time.February, res.Summary[1].Month.Month)

	// Portal totals are surfaced as reported, not reconciled with the day list.
	assert.Equal(t, "3", res.Totals.Absent.String())
	assert.Equal(t, "38", res.Totals.Present.String())
	assert.Equal(t, "1", res.Totals.Holiday.String())
	assert.True(t, res.Totals.PayableDays.Equal(decimal.RequireFromString("57.5")))
}

func TestAggregateTrailingWindow(t *testing.T) {
	w := mkWindow("2025-01-05", "2025-02-20")
	jan := &Payload{Data: PayloadData{
		DailyAttendanceSummary: []DailySummary{
			day("2025-01-02", absent("Absent")),
			day("2025-01-10", absent("Absent")),
		},
		CountDetails: CountDetails{AbsentCount: count("2")},
	}}
	feb := &Payload{Data: PayloadData{
		DailyAttendanceSummary: []DailySummary{day("2025-02-20", absent("Absent"))},
		CountDetails:           CountDetails{AbsentCount: count("1")},
	}}

	res := Aggregate([]MonthResult{
		{Month: model.Month{Month: time.January, Year: 2025}, Payload: jan},
		{Month: model.Month{Month: time.February, Year: 2025}, Payload: feb},
	}, w)
	assert.Equal(t, 2, res.TotalAbsent)
	assert.Equal(t, "2025-01-10", res.AbsentDays[0].Date)
	assert.Equal(t, "2025-02-20", res.AbsentDays[1].Date)
	assert.Equal(t, "3", res.Totals.Absent.String())
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(nil, mkWindow("2025-01-01", "2025-01-31"))
	assert.Equal(t, 0, res.TotalAbsent)
	assert.NotNil(t, res.AbsentDays)
	assert.Empty(t, res.Summary)
}

func TestPayloadNormalizesMissingFields(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{"Data":{"DailyAttendanceSummary":null,"CountDetails":{"AbsentCount":4,"PayableDays":null}}}`), &p))
	s := BuildSummary(model.Month{Month: time.March, Year: 2025}, &p)
	assert.Equal(t, "4", s.Absent.String())
	assert.True(t, s.PayableDays.IsZero())
	assert.Empty(t, ExtractAbsences(&p, mkWindow("2025-03-01", "2025-03-31")))

	var empty Payload
	require.NoError(t, json.Unmarshal([]byte(`{"Data":null}`), &empty))
	assert.True(t, BuildSummary(model.Month{}, &empty).Absent.IsZero())
}
