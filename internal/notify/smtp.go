package notify

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/mpart-uis/grant-scout/internal/config"
	"github.com/mpart-uis/grant-scout/internal/models"
)

// Mailer sends digests and high-score alerts over SMTP. Disabled config
// turns every send into a logged no-op, so callers never branch.
type Mailer struct {
	cfg config.SMTPSettings

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg config.SMTPSettings) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// SendDigest mails a rendered digest to the configured recipients.
func (m *Mailer) SendDigest(subject, body string) error {
	if !m.cfg.Enabled || len(m.cfg.Recipients) == 0 {
		log.Printf("[notify] smtp disabled, skipping digest %q", subject)
		return nil
	}

	msg := m.buildMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, m.cfg.Sender, m.cfg.Recipients, msg); err != nil {
		return fmt.Errorf("sending digest: %w", err)
	}
	return nil
}

// SendAlert mails an immediate notice for a single very high-scoring
// match.
func (m *Mailer) SendAlert(match *models.Match) error {
	subject := fmt.Sprintf("High-scoring grant match (%d/100): %s", match.MatchScore, match.GrantTitle)
	body := fmt.Sprintf(
		"Grant: %s\nScore: %d/100 (keyword %d)\nRecommended lead: %s\nAction: %s\n\n%s\n",
		match.GrantTitle, match.MatchScore, match.KeywordScore,
		match.RecommendedLead, match.RecommendedAction, match.Rationale,
	)
	return m.SendDigest(subject, body)
}

func (m *Mailer) buildMessage(subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
