package infra

import (
	"fmt"
	"net/smtp"
	"strings"

	"fairtrace/internal/config"

	"github.com/jordan-wright/email"
)

// Mailer sends review notifications to the data-quality team.
type Mailer struct {
	host     string
	user     string
	password string
	from     string
	addr     string
	send     func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewMailer(cfg *config.Config) *Mailer {
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	return &Mailer{
		host:     cfg.SMTPHost,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     from,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		send:     func(e *email.Email, addr string, auth smtp.Auth) error { return e.Send(addr, auth) },
	}
}

// Configured reports whether an SMTP host is set.
func (m *Mailer) Configured() bool { return m != nil && m.host != "" }

// SendReview mails a plain-text review notice. Lines of detail are sent as
// an HTML list as well for mail clients that prefer it.
func (m *Mailer) SendReview(to []string, subject string, details []string) error {
	if !m.Configured() {
		return fmt.Errorf("mailer: smtp host not configured")
	}
	e := email.NewEmail()
	e.From = m.from
	e.To = to
	e.Subject = subject
	e.Text = []byte(strings.Join(details, "\n") + "\n")

	var html strings.Builder
	html.WriteString("<ul>")
	for _, d := range details {
		html.WriteString("<li>" + escapeHTML(d) + "</li>")
	}
	html.WriteString("</ul>")
	e.HTML = []byte(html.String())

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	if err := m.send(e, m.addr, auth); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	return nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
