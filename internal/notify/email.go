// Package notify sends absence alerts and failure notices by email.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"hrwatch/internal/config"
	appLog "hrwatch/internal/log"
	"hrwatch/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	maxRetries  = 3
	dialTimeout = 30 * time.Second
)

// Mailer renders notifications and delivers them over SMTP.
type Mailer struct {
	cfg       config.SMTPConfig
	to        string
	templates *template.Template
	now       func() time.Time

	// send delivers a fully formed message; replaced in tests.
	send func(ctx context.Context, msg []byte) error
}

// NewMailer parses the embedded templates and returns a Mailer for to.
func NewMailer(cfg config.SMTPConfig, to string) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	m := &Mailer{
		cfg:       cfg,
		to:        to,
		templates: tmpl,
		now:       time.Now,
	}
	m.send = m.deliver
	return m, nil
}

type pageData struct {
	Title  string
	SentAt string
}

type absenceData struct {
	pageData
	Start       string
	End         string
	TotalAbsent int
	AbsentDays  []model.AbsenceRecord
	Summary     []model.MonthlySummary
	Totals      model.MonthlySummary
}

type failureData struct {
	pageData
	Kind   model.Kind
	Hint   string
	Detail string
}

// SendAbsenceReport mails the absent days found in w.
func (m *Mailer) SendAbsenceReport(ctx context.Context, w model.Window, res model.AggregateResult) error {
	subject := fmt.Sprintf("Attendance alert: %d absence(s) between %s and %s",
		res.TotalAbsent, w.Start.Format(model.DateLayout), w.End.Format(model.DateLayout))
	data := absenceData{
		pageData:    m.page("Unexplained absences"),
		Start:       w.Start.Format(model.DateLayout),
		End:         w.End.Format(model.DateLayout),
		TotalAbsent: res.TotalAbsent,
		AbsentDays:  res.AbsentDays,
		Summary:     res.Summary,
		Totals:      res.Totals,
	}
	return m.render(ctx, "absence.html", subject, data)
}

// SendSessionExpired tells the user to log in again.
func (m *Mailer) SendSessionExpired(ctx context.Context, cause error) error {
	data := failureData{
		pageData: m.page("HR portal session expired"),
		Kind:     model.KindSessionExpired,
		Hint:     model.Hint(model.KindSessionExpired),
		Detail:   errText(cause),
	}
	return m.render(ctx, "session_expired.html", "hrwatch: HR portal login required", data)
}

// SendFailure reports a failed check with a hint matching kind.
func (m *Mailer) SendFailure(ctx context.Context, kind model.Kind, cause error) error {
	data := failureData{
		pageData: m.page("Attendance check failed"),
		Kind:     kind,
		Hint:     model.Hint(kind),
		Detail:   errText(cause),
	}
	return m.render(ctx, "failure.html", "hrwatch: attendance check failed ("+string(kind)+")", data)
}

// SendTest sends a connectivity probe.
func (m *Mailer) SendTest(ctx context.Context) error {
	return m.render(ctx, "test.html", "hrwatch: test email", m.page("hrwatch test email"))
}

func (m *Mailer) page(title string) pageData {
	return pageData{Title: title, SentAt: m.now().Format(time.RFC1123)}
}

func (m *Mailer) render(ctx context.Context, name, subject string, data any) error {
	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	msg := m.buildMessage(subject, body.String())

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := m.send(ctx, msg)
		if err == nil {
			appLog.Info("email sent", "to", m.to, "subject", subject, "attempt", attempt)
			return nil
		}
		lastErr = err
		appLog.Error("email send failed", err, "to", m.to, "subject", subject, "attempt", attempt, "max_retries", maxRetries)

		if attempt < maxRetries {
			// 1s, 2s backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}
	}
	return fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}

func (m *Mailer) buildMessage(subject, htmlBody string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: hrwatch <%s>\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}

func (m *Mailer) deliver(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	tlsCfg := &tls.Config{ServerName: m.cfg.Host}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if m.cfg.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if !m.cfg.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(m.to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	var e *model.Error
	if errors.As(err, &e) && e.Body != "" {
		return err.Error() + "\n\nResponse body:\n" + e.Body
	}
	return err.Error()
}
