package check

import (
	"time"

	"hrwatch/internal/credential"
	"hrwatch/internal/model"
)

// Status is the record of one completed check, served by the status API.
type Status struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	WindowStart string    `json:"window_start"`
	WindowEnd   string    `json:"window_end"`

	TotalAbsent int                   `json:"total_absent"`
	AbsentDays  []model.AbsenceRecord `json:"absent_days,omitempty"`
	// ReportedAbsent is the portal's own whole-month count.
	ReportedAbsent string `json:"reported_absent,omitempty"`
	PayableDays    string `json:"payable_days,omitempty"`

	Credential  credential.Status `json:"credential_status"`
	ErrorKind   model.Kind        `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	NotifyError string            `json:"notify_error,omitempty"`
}

// OK reports whether the run completed without error.
func (s Status) OK() bool {
	return s.ErrorKind == ""
}

func (r *Runner) record(st Status) {
	r.mu.Lock()
	r.last = &st
	r.mu.Unlock()
}

// Last returns the most recent run, if any.
func (r *Runner) Last() (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Status{}, false
	}
	return *r.last, true
}

// CredentialStatus reports the current state of the held credential.
func (r *Runner) CredentialStatus() credential.Status {
	return r.store.Status()
}
