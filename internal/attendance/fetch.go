package attendance

import (
	"context"

	"hrwatch/internal/credential"
	appLog "hrwatch/internal/log"
	"hrwatch/internal/model"
)

// MonthFetcher fetches one month's raw summary.
type MonthFetcher interface {
	FetchMonth(ctx context.Context, month model.Month, cred credential.Credential) (*Payload, error)
}

// CredentialSource yields a usable credential, refreshing it if needed.
type CredentialSource func(ctx context.Context) (credential.Credential, error)

// FetchWindow fetches every month of w in order, one at a time. A fresh
// credential is requested before each month so a token expiring mid-run is
// refreshed. The first failure aborts the whole window and no partial
// results are returned.
func FetchWindow(ctx context.Context, w model.Window, creds CredentialSource, f MonthFetcher) ([]MonthResult, error) {
	results := make([]MonthResult, 0, len(w.Months))
	for _, m := range w.Months {
		if err := ctx.Err(); err != nil {
			return nil, model.NewError(model.KindUnknown, "fetch "+m.String(), err)
		}

		cred, err := creds(ctx)
		if err != nil {
			return nil, err
		}

		p, err := f.FetchMonth(ctx, m, cred)
		if err != nil {
			appLog.Error("month fetch failed; aborting window", err, "month", m.String(), "window", w.String())
			return nil, err
		}
		results = append(results, MonthResult{Month: m, Payload: p})
	}
	return results, nil
}
