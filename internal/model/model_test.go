package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWindowContains(t *testing.T) {
	loc := time.UTC
	w := Window{
		Start: time.Date(2025, time.January, 26, 0, 0, 0, 0, loc),
		End:   time.Date(2025, time.February, 25, 0, 0, 0, 0, loc),
	}

	assert.True(t, w.Contains(time.Date(2025, time.January, 26, 0, 0, 0, 0, loc)))
	assert.True(t, w.Contains(time.Date(2025, time.February, 25, 23, 59, 0, 0, loc)))
	assert.False(t, w.Contains(time.Date(2025, time.January, 25, 12, 0, 0, 0, loc)))
	assert.False(t, w.Contains(time.Date(2025, time.February, 26, 0, 0, 0, 0, loc)))
	assert.Equal(t, "[2025-01-26, 2025-02-25]", w.String())
}

func TestMonthlySummaryAdd(t *testing.T) {
	a := MonthlySummary{Month: Month{time.January, 2025}, Absent: decimal.NewFromInt(2), Present: decimal.RequireFromString("17.5"), PayableDays: decimal.RequireFromString("29.5")}
	b := MonthlySummary{Month: Month{time.February, 2025}, Absent: decimal.NewFromInt(1), Present: decimal.NewFromInt(19), PayableDays: decimal.NewFromInt(28)}

	sum := a.Add(b)
	assert.Equal(t, "3", sum.Absent.String())
	assert.Equal(t, "36.5", sum.Present.String())
	assert.True(t, sum.PayableDays.Equal(decimal.RequireFromString("57.5")))
	assert.Equal(t, "2025-01", sum.Month.String())
}

func TestKindOf(t *testing.T) {
	authErr := &Error{Kind: KindAuth, Op: "fetch month", Status: 401}
	wrapped := fmt.Errorf("check: %w", authErr)

	assert.Equal(t, KindAuth, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindSessionExpired, KindOf(fmt.Errorf("x: %w", ErrSessionExpired)))
	assert.Contains(t, authErr.Error(), "status 401")
}

func TestSessionExpiredIs(t *testing.T) {
	err := NewError(KindSessionExpired, "refresh", errors.New("hr_atk missing"))
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.False(t, errors.Is(NewError(KindAuth, "fetch", nil), ErrSessionExpired))
}
