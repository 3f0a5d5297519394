package check

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrwatch/internal/attendance"
	"hrwatch/internal/credential"
	"hrwatch/internal/model"
	"hrwatch/internal/window"
)

var today = time.Date(2025, time.February, 10, 9, 30, 0, 0, time.UTC)

func now() time.Time { return today }

type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[model.Month]*attendance.Payload
	fail     map[model.Month]error
	calls    []model.Month
}

func (f *fakeFetcher) FetchMonth(_ context.Context, m model.Month, cred credential.Credential) (*attendance.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, m)
	if err := f.fail[m]; err != nil {
		return nil, err
	}
	if p, ok := f.payloads[m]; ok {
		return p, nil
	}
	return &attendance.Payload{}, nil
}

type fakeNotifier struct {
	absence []model.AggregateResult
	expired []error
	failed  []model.Kind
}

func (n *fakeNotifier) SendAbsenceReport(_ context.Context, _ model.Window, res model.AggregateResult) error {
	n.absence = append(n.absence, res)
	return nil
}

func (n *fakeNotifier) SendSessionExpired(_ context.Context, cause error) error {
	n.expired = append(n.expired, cause)
	return nil
}

func (n *fakeNotifier) SendFailure(_ context.Context, kind model.Kind, _ error) error {
	n.failed = append(n.failed, kind)
	return nil
}

type failingLauncher struct{ launches int }

func (l *failingLauncher) WithSession(context.Context, func(context.Context, credential.Session) error) error {
	l.launches++
	return errors.New("chrome not found")
}

func absentDay(date, label string) attendance.DailySummary {
	return attendance.DailySummary{
		ShiftDetails:          attendance.ShiftDetails{Date: date + "T00:00:00"},
		DailyAttendanceStatus: []attendance.DailyStatus{{TagType: attendance.TagAbsent, TagName: label}},
	}
}

var (
	jan = model.Month{Month: time.January, Year: 2025}
	feb = model.Month{Month: time.February, Year: 2025}
)

func salaryFetcher() *fakeFetcher {
	return &fakeFetcher{payloads: map[model.Month]*attendance.Payload{
		jan: {Data: attendance.PayloadData{
			DailyAttendanceSummary: []attendance.DailySummary{
				absentDay("2025-01-10", "Absent"),
				absentDay("2025-01-25", "Absent"),
				absentDay("2025-01-28", "Absent"),
			},
			CountDetails: attendance.CountDetails{AbsentCount: attendance.Count{Decimal: decimal.NewFromInt(3)}},
		}},
		feb: {Data: attendance.PayloadData{
			DailyAttendanceSummary: []attendance.DailySummary{absentDay("2025-02-20", "Unpaid Absence")},
			CountDetails:           attendance.CountDetails{AbsentCount: attendance.Count{Decimal: decimal.NewFromInt(1)}},
		}},
	}}
}

type harness struct {
	runner   *Runner
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	launcher *failingLauncher
	store    *credential.Store
}

func newHarness(t *testing.T, validCred bool, fetcher *fakeFetcher, dryRun bool) *harness {
	t.Helper()
	store := credential.NewStore(now)
	if validCred {
		require.NoError(t, store.Replace(credential.Credential{
			AccessToken: "atk", XSRFToken: "xsrf", MappingID: "mid",
			ExpiresAt: today.Add(time.Hour),
		}))
	}
	refresher := credential.NewRefresher(credential.RefresherConfig{
		PortalURL: "https://hr.example.com",
		Files:     credential.FileStore{Path: filepath.Join(t.TempDir(), "cookies.json")},
		Now:       now,
	})
	h := &harness{
		fetcher:  fetcher,
		notifier: &fakeNotifier{},
		launcher: &failingLauncher{},
		store:    store,
	}
	h.runner = NewRunner(store, refresher, h.launcher, fetcher, h.notifier, Options{
		Mode:     window.Mode{SalaryPeriod: true},
		Location: time.UTC,
		DryRun:   dryRun,
		Now:      now,
	})
	return h
}

func TestCheckSalaryPeriodReportsInWindowAbsences(t *testing.T) {
	h := newHarness(t, true, salaryFetcher(), false)

	require.NoError(t, h.runner.Check(context.Background()))

	assert.Equal(t, []model.Month{jan, feb}, h.fetcher.calls)
	require.Len(t, h.notifier.absence, 1)
	res := h.notifier.absence[0]
	assert.Equal(t, 2, res.TotalAbsent)
	assert.Equal(t, []model.AbsenceRecord{
		{Date: "2025-01-28", Status: "Absent"},
		{Date: "2025-02-20", Status: "Unpaid Absence"},
	}, res.AbsentDays)
	assert.Equal(t, "4", res.Totals.Absent.String())
	assert.Zero(t, h.launcher.launches)

	st, ok := h.runner.Last()
	require.True(t, ok)
	assert.True(t, st.OK())
	assert.NotEmpty(t, st.RunID)
	assert.Equal(t, "2025-01-26", st.WindowStart)
	assert.Equal(t, "2025-02-25", st.WindowEnd)
	assert.Equal(t, 2, st.TotalAbsent)
	assert.Equal(t, "4", st.ReportedAbsent)
	assert.Equal(t, credential.StatusValid, st.Credential)
}

func TestCheckAuthFailureOnSecondMonth(t *testing.T) {
	f := salaryFetcher()
	f.fail = map[model.Month]error{feb: &model.Error{Kind: model.KindAuth, Op: "fetch 2025-02", Status: 401}}
	h := newHarness(t, true, f, false)

	err := h.runner.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.KindAuth, model.KindOf(err))

	assert.Empty(t, h.notifier.absence)
	assert.Equal(t, []model.Kind{model.KindAuth}, h.notifier.failed)

	st, _ := h.runner.Last()
	assert.False(t, st.OK())
	assert.Equal(t, model.KindAuth, st.ErrorKind)
	assert.Zero(t, st.TotalAbsent)
	assert.Empty(t, st.AbsentDays)
}

func TestCheckSessionExpired(t *testing.T) {
	h := newHarness(t, false, salaryFetcher(), false)

	err := h.runner.Check(context.Background())
	assert.ErrorIs(t, err, model.ErrSessionExpired)

	assert.Equal(t, 1, h.launcher.launches)
	assert.Empty(t, h.fetcher.calls)
	assert.Len(t, h.notifier.expired, 1)
	assert.Empty(t, h.notifier.failed)
	assert.Empty(t, h.notifier.absence)

	st, _ := h.runner.Last()
	assert.Equal(t, model.KindSessionExpired, st.ErrorKind)
	assert.Equal(t, credential.StatusMissing, st.Credential)
}

func TestCheckNetworkFailure(t *testing.T) {
	f := salaryFetcher()
	f.fail = map[model.Month]error{jan: model.NewError(model.KindNetwork, "fetch 2025-01", errors.New("connection refused"))}
	h := newHarness(t, true, f, false)

	err := h.runner.Check(context.Background())
	assert.Equal(t, model.KindNetwork, model.KindOf(err))
	assert.Equal(t, []model.Kind{model.KindNetwork}, h.notifier.failed)
	assert.Equal(t, []model.Month{jan}, f.calls)
}

func TestCheckNoAbsencesSendsNothing(t *testing.T) {
	h := newHarness(t, true, &fakeFetcher{}, false)

	require.NoError(t, h.runner.Check(context.Background()))
	assert.Empty(t, h.notifier.absence)
	assert.Empty(t, h.notifier.failed)
	assert.Empty(t, h.notifier.expired)
}

func TestCheckDryRunSkipsNotifications(t *testing.T) {
	h := newHarness(t, true, salaryFetcher(), true)
	require.NoError(t, h.runner.Check(context.Background()))
	assert.Empty(t, h.notifier.absence)

	h = newHarness(t, false, salaryFetcher(), true)
	assert.Error(t, h.runner.Check(context.Background()))
	assert.Empty(t, h.notifier.expired)
}

func TestReportConfigErrorIsLoggedOnly(t *testing.T) {
	h := newHarness(t, true, &fakeFetcher{}, false)
	cfgErr := model.NewError(model.KindConfig, "validate config", errors.New("missing required settings: portal.base_url"))

	require.NoError(t, h.runner.Report(context.Background(), model.Window{}, model.AggregateResult{}, cfgErr))
	assert.Empty(t, h.notifier.failed)
	assert.Empty(t, h.notifier.expired)
}

func TestReportUnclassifiedErrorIsUnknown(t *testing.T) {
	h := newHarness(t, true, &fakeFetcher{}, false)
	require.NoError(t, h.runner.Report(context.Background(), model.Window{}, model.AggregateResult{}, errors.New("boom")))
	assert.Equal(t, []model.Kind{model.KindUnknown}, h.notifier.failed)
}

func TestLastBeforeAnyRun(t *testing.T) {
	h := newHarness(t, true, &fakeFetcher{}, false)
	_, ok := h.runner.Last()
	assert.False(t, ok)
}

func TestTrailingWindow(t *testing.T) {
	h := newHarness(t, true, salaryFetcher(), false)
	h.runner.opts.Mode = window.Mode{LookbackDays: 31}

	w, res, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", w.Start.Format(model.DateLayout))
	assert.Equal(t, "2025-02-10", w.End.Format(model.DateLayout))
	assert.Equal(t, 3, res.TotalAbsent)
	assert.Equal(t, "2025-01-10", res.AbsentDays[0].Date)
}
