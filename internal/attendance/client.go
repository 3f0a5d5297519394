// Package attendance fetches monthly attendance summaries from the portal
// and turns them into absence reports.
package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hrwatch/internal/credential"
	appLog "hrwatch/internal/log"
	"hrwatch/internal/model"
)

const (
	summaryPath = "/attendance-summary/get-monthly-attendance-summary"

	DefaultTimeout = 15 * time.Second
	maxBodyKept    = 4 << 10
	maxBodyRead    = 8 << 20
)

// Client calls the portal's monthly summary endpoint.
type Client struct {
	baseURL string
	client  *http.Client
	loc     *time.Location
	now     func() time.Time
}

// NewClient creates a Client for baseURL (scheme, host and API prefix).
// currentCalendarDate is reported as today's date in loc, the zone the
// reporting window is computed in. timeout <= 0 uses DefaultTimeout; loc and
// now may be nil.
func NewClient(baseURL string, timeout time.Duration, loc *time.Location, now func() time.Time) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		loc:     loc,
		now:     now,
	}
}

// FetchMonth fetches the raw summary for one month. Failures are classified
// as auth, network or unknown *model.Error values.
func (c *Client) FetchMonth(ctx context.Context, month model.Month, cred credential.Credential) (*Payload, error) {
	op := "fetch " + month.String()

	req, err := c.newRequest(ctx, month, cred)
	if err != nil {
		return nil, model.NewError(model.KindUnknown, op, err)
	}

	appLog.Debug("attendance fetch start", "month", month.String())
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := model.KindUnknown
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = model.KindAuth
		}
		return nil, &model.Error{
			Kind:   kind,
			Op:     op,
			Status: resp.StatusCode,
			Body:   truncate(body),
			Err:    errors.New(resp.Status),
		}
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &model.Error{
			Kind:   model.KindUnknown,
			Op:     op,
			Status: resp.StatusCode,
			Body:   truncate(body),
			Err:    fmt.Errorf("decode summary: %w", err),
		}
	}

	appLog.Info("attendance fetch success",
		"month", month.String(),
		"days", len(p.Data.DailyAttendanceSummary),
		"absent_count", p.Data.CountDetails.AbsentCount.String(),
	)
	return &p, nil
}

func (c *Client) newRequest(ctx context.Context, month model.Month, cred credential.Credential) (*http.Request, error) {
	q := url.Values{}
	q.Set("month", strconv.Itoa(int(month.Month)))
	q.Set("year", strconv.Itoa(month.Year))
	q.Set("currentCalendarDate", c.now().In(c.loc).Format(model.DateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+summaryPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	// The portal checks the header and cookie copies of each token.
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Mappingid", cred.MappingID)
	req.Header.Set("X-XSRF-TOKEN", cred.XSRFToken)
	req.Header.Set("Cookie", strings.Join([]string{
		credential.CookieAccessToken + "=" + cred.AccessToken,
		credential.CookieXSRF + "=" + cred.XSRFToken,
		credential.CookieMappingID + "=" + cred.MappingID,
	}, "; "))
	return req, nil
}

func classifyTransport(op string, err error) error {
	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.Canceled):
		return model.NewError(model.KindUnknown, op, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.As(err, &netErr):
		return model.NewError(model.KindNetwork, op, err)
	default:
		return model.NewError(model.KindUnknown, op, err)
	}
}

func truncate(body []byte) string {
	if len(body) > maxBodyKept {
		return string(body[:maxBodyKept]) + "...(truncated)"
	}
	return string(body)
}
