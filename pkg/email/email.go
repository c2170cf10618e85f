package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"html/template"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"portfolio-backend/config"

	"github.com/jordan-wright/email"
)

// SubjectPrefix is prepended to every relayed subject line.
const SubjectPrefix = "Portfolio Contact: "

// EmailService relays contact form messages to the site owner via SMTP.
type EmailService struct {
	host      string
	port      string
	username  string
	password  string
	fromEmail string
	toEmail   string
	poolSize  int
	timeout   time.Duration

	mu   sync.Mutex
	pool *email.Pool
}

// ContactEmailData holds the data for contact form emails. Every field must
// already be sanitized: the values are placed into the HTML body verbatim.
type ContactEmailData struct {
	SenderName  string
	SenderEmail string
	Subject     string
	Message     string
	SubmittedAt time.Time
}

// NewEmailService creates a new email service from the SMTP configuration
func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		username:  cfg.SMTPUsername,
		password:  cfg.SMTPPassword,
		fromEmail: cfg.SMTPFromEmail,
		toEmail:   cfg.ContactEmailTo,
		poolSize:  cfg.SMTPPoolSize,
		timeout:   cfg.SMTPTimeout,
	}
}

// contactEmailTemplate is the HTML template for contact form emails
var contactEmailTemplate = template.Must(template.New("contact").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New Contact Form Submission</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1a1a2e; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background: #f9f9f9; }
        .field { margin-bottom: 15px; }
        .label { font-weight: bold; color: #555; }
        .message-box { background: white; padding: 15px; border-left: 4px solid #1a1a2e; margin-top: 10px; }
        .footer { text-align: center; padding: 20px; color: #888; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>New Contact Form Submission</h1>
        </div>
        <div class="content">
            <div class="field"><span class="label">Name:</span> {{.Name}}</div>
            <div class="field"><span class="label">Email:</span> {{.Email}}</div>
            <div class="field"><span class="label">Subject:</span> {{.Subject}}</div>
            <div class="field">
                <div class="label">Message:</div>
                <div class="message-box">{{.Message}}</div>
            </div>
        </div>
        <div class="footer">
            <p>Sent from the portfolio contact form at {{.SubmittedAt}}.</p>
            <p>Reply directly to this email to respond to {{.Name}}.</p>
        </div>
    </div>
</body>
</html>`))

// contactTextTemplate is the plain-text alternative
const contactTextTemplate = `New Contact Form Submission

Name: %s
Email: %s
Subject: %s

Message:
%s

Sent at %s
`

type templateData struct {
	Name        template.HTML
	Email       template.HTML
	Subject     template.HTML
	Message     template.HTML
	SubmittedAt string
}

// SendContactEmail sends a contact form email to the configured recipient
func (s *EmailService) SendContactEmail(ctx context.Context, data ContactEmailData) error {
	if !s.IsConfigured() {
		return errors.New("email service is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := s.buildMessage(data)
	if err != nil {
		return err
	}

	if err := s.send(ctx, e); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *EmailService) buildMessage(data ContactEmailData) (*email.Email, error) {
	if data.SubmittedAt.IsZero() {
		data.SubmittedAt = time.Now()
	}
	sentAt := data.SubmittedAt.UTC().Format(time.RFC1123)

	// Values are sanitized, so they are trusted as HTML; only newlines need
	// converting for display.
	var body bytes.Buffer
	err := contactEmailTemplate.Execute(&body, templateData{
		Name:        template.HTML(data.SenderName),
		Email:       template.HTML(data.SenderEmail),
		Subject:     template.HTML(data.Subject),
		Message:     template.HTML(strings.ReplaceAll(data.Message, "\n", "<br>")),
		SubmittedAt: sentAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute email template: %w", err)
	}

	e := email.NewEmail()
	e.From = s.fromEmail
	e.To = []string{s.toEmail}
	e.ReplyTo = []string{html.UnescapeString(data.SenderEmail)}
	e.Subject = SubjectPrefix + singleLine(html.UnescapeString(data.Subject))
	e.HTML = body.Bytes()
	e.Text = []byte(fmt.Sprintf(contactTextTemplate,
		html.UnescapeString(data.SenderName),
		html.UnescapeString(data.SenderEmail),
		html.UnescapeString(data.Subject),
		html.UnescapeString(data.Message),
		sentAt,
	))
	return e, nil
}

func (s *EmailService) send(ctx context.Context, e *email.Email) error {
	addr := net.JoinHostPort(s.host, s.port)
	tlsConfig := &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}
	timeout := s.sendTimeout(ctx)

	if s.poolSize <= 0 || s.port == "465" {
		return s.deliver(ctx, addr, e, tlsConfig, timeout)
	}

	pool, err := s.getPool(addr, tlsConfig)
	if err != nil {
		return err
	}

	// Pooled connections carry no I/O deadline, so a stalled relay is
	// abandoned here and the pool replaces the connection once it errors.
	errc := make(chan error, 1)
	go func() { errc <- pool.Send(e, timeout) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		return err
	case <-timer.C:
		return fmt.Errorf("smtp relay did not answer within %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver runs one SMTP transaction on a fresh connection that cannot outlive
// timeout. Port 465 speaks TLS from the first byte; other ports upgrade with
// STARTTLS when the relay offers it.
func (s *EmailService) deliver(ctx context.Context, addr string, e *email.Email, tlsConfig *tls.Config, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return fmt.Errorf("parse sender: %w", err)
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp relay: %w", err)
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if s.port == "465" {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if s.port != "465" {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if a := s.auth(); a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(from.Address); err != nil {
		return err
	}
	for _, to := range e.To {
		rcpt, err := mail.ParseAddress(to)
		if err != nil {
			return fmt.Errorf("parse recipient: %w", err)
		}
		if err := c.Rcpt(rcpt.Address); err != nil {
			return err
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *EmailService) getPool(addr string, tlsConfig *tls.Config) (*email.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return s.pool, nil
	}
	pool, err := email.NewPool(addr, s.poolSize, s.auth(), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("create smtp pool: %w", err)
	}
	s.pool = pool
	return pool, nil
}

func (s *EmailService) sendTimeout(ctx context.Context) time.Duration {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

// auth is nil when no credentials are configured, for relays that accept
// unauthenticated submission.
func (s *EmailService) auth() smtp.Auth {
	if s.username == "" {
		return nil
	}
	return smtp.PlainAuth("", s.username, s.password, s.host)
}

// Close releases pooled SMTP connections.
func (s *EmailService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// IsConfigured checks if the email service has valid SMTP configuration
func (s *EmailService) IsConfigured() bool {
	return s.host != "" && s.fromEmail != "" && s.toEmail != ""
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
