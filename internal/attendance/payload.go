package attendance

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TagType is the portal's per-day attendance classification.
type TagType int

const (
	TagPresent   TagType = 1
	TagAbsent    TagType = 2
	TagWeeklyOff TagType = 3
	TagHoliday   TagType = 4
	TagLeave     TagType = 5
)

// UnmarshalJSON accepts a number or a numeric string. Anything else decodes
// to 0, which matches no known tag.
func (t *TagType) UnmarshalJSON(b []byte) error {
	*t = 0
	n, err := strconv.Atoi(unquote(b))
	if err == nil {
		*t = TagType(n)
	}
	return nil
}

// Count is a portal-reported day count. Counts can be fractional (half
// days), quoted or null; malformed values decode to zero instead of
// rejecting the month.
type Count struct {
	decimal.Decimal
}

func (c *Count) UnmarshalJSON(b []byte) error {
	c.Decimal = decimal.Zero
	s := unquote(b)
	if s == "" || s == "null" {
		return nil
	}
	if d, err := decimal.NewFromString(s); err == nil {
		c.Decimal = d
	}
	return nil
}

func unquote(b []byte) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(string(b)), `"`))
}

// Payload is the monthly summary response. Decoding leaves absent or null
// fields at their zero value, so callers can treat it as total.
type Payload struct {
	Data PayloadData `json:"Data"`
}

type PayloadData struct {
	DailyAttendanceSummary []DailySummary `json:"DailyAttendanceSummary"`
	CountDetails           CountDetails   `json:"CountDetails"`
}

type DailySummary struct {
	ShiftDetails          ShiftDetails  `json:"ShiftDetails"`
	DailyAttendanceStatus []DailyStatus `json:"DailyAttendanceStatus"`
}

type ShiftDetails struct {
	// Date is either "2006-01-02" or "2006-01-02T15:04:05".
	Date string `json:"Date"`
}

type DailyStatus struct {
	TagType TagType `json:"TagType"`
	TagName string  `json:"TagName"`
}

type CountDetails struct {
	PresentCount        Count `json:"PresentCount"`
	AbsentCount         Count `json:"AbsentCount"`
	LeaveCount          Count `json:"LeaveCount"`
	HolidayCount        Count `json:"HolidayCount"`
	WeeklyOffCount      Count `json:"WeeklyOffCount"`
	PayableDays         Count `json:"PayableDays"`
	RegularizationCount Count `json:"RegularizationCount"`
}
