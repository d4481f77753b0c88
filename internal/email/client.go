package email

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/example/carecircle/internal/config"
	"github.com/example/carecircle/internal/models"
)

// ErrNotConfigured is returned when SMTP credentials or the support inbox are missing.
var ErrNotConfigured = errors.New("SMTP credentials not configured")

// Dialer sends composed messages.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailService struct {
	cfg    *config.Config
	dialer Dialer
}

// NewEmailService creates the support mailer.
func NewEmailService(cfg *config.Config) (*EmailService, error) {
	if cfg.SMTPUsername == "" || cfg.SMTPPassword == "" || cfg.SupportEmail == "" {
		return nil, ErrNotConfigured
	}

	dialer := gomail.NewDialer(
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUsername,
		cfg.SMTPPassword,
	)

	return &EmailService{
		cfg:    cfg,
		dialer: dialer,
	}, nil
}

// SendEmail sends an HTML email.
func (s *EmailService) SendEmail(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.fromAddress()))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *EmailService) fromAddress() string {
	if s.cfg.SMTPFromEmail != "" {
		return s.cfg.SMTPFromEmail
	}
	return s.cfg.SMTPUsername
}

// SendSupportTicket forwards a new ticket to the support inbox.
func (s *EmailService) SendSupportTicket(account models.Account, ticket models.SupportTicket) error {
	subject := fmt.Sprintf("[Support] %s ticket from %s", ticket.Category, account.Name)
	return s.SendEmail(s.cfg.SupportEmail, subject, supportTicketBody(account, ticket))
}

func supportTicketBody(account models.Account, ticket models.SupportTicket) string {
	var b strings.Builder
	b.WriteString("<h2>New support ticket</h2>")
	fmt.Fprintf(&b, "<p><b>Ticket:</b> %s</p>", html.EscapeString(ticket.ID))
	fmt.Fprintf(&b, "<p><b>Account:</b> %s (%s, %s)</p>",
		html.EscapeString(account.Name), html.EscapeString(string(account.Role)), html.EscapeString(account.Phone))
	fmt.Fprintf(&b, "<p><b>Category:</b> %s</p>", html.EscapeString(ticket.Category))
	fmt.Fprintf(&b, "<p>%s</p>", strings.ReplaceAll(html.EscapeString(ticket.Description), "\n", "<br>"))
	return b.String()
}
