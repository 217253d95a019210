// Package email delivers reports over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

// ChannelName identifies the channel in dispatch results.
const ChannelName = "email"

// Config holds SMTP settings.
type Config struct {
	SMTPServer string
	SMTPPort   int
	From       string
	Password   string
	To         []string
}

// Dialer sends composed messages; *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender renders a report as one email with an HTML part and a plain text fallback.
type Sender struct {
	cfg      Config
	dialer   Dialer
	renderer *Renderer
	log      logger.Logger
}

// NewSender creates an SMTP sender. The From address doubles as the login.
func NewSender(cfg Config, log logger.Logger) *Sender {
	d := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.From, cfg.Password)
	d.Timeout = 10 * time.Second
	if cfg.SMTPPort == 465 {
		d.SSL = true
	}
	return newSender(cfg, d, log)
}

func newSender(cfg Config, d Dialer, log logger.Logger) *Sender {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sender{cfg: cfg, dialer: d, renderer: NewRenderer(), log: log}
}

// Name returns the channel name.
func (s *Sender) Name() string { return ChannelName }

// Send mails the report to every recipient. The plain text part is the
// formatted messages joined back together.
func (s *Sender) Send(ctx context.Context, r news.Report, messages []string) error {
	if len(s.cfg.To) == 0 {
		return errors.New("no email recipients configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	html, err := s.renderer.Render(r)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.To...)
	m.SetHeader("Subject", Subject(r))
	m.SetBody("text/plain", strings.Join(messages, "\n\n"))
	m.AddAlternative("text/html", html)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", strings.Join(s.cfg.To, ","), err)
	}

	s.log.Info("Email sent", logger.Strings("to", s.cfg.To), logger.String("kind", string(r.Kind)))
	return nil
}

// Subject builds the mail subject of r.
func Subject(r news.Report) string {
	kind := string(r.Kind)
	if kind == "" {
		kind = "trend report"
	}
	subject := fmt.Sprintf("TrendRadar %s: %d matches", kind, r.TotalMatches())
	if !r.GeneratedAt.IsZero() {
		subject += " - " + r.GeneratedAt.Format("2006-01-02 15:04")
	}
	return subject
}
