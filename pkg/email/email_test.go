package email_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/mail"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"portfolio-backend/config"
	"portfolio-backend/pkg/email"
)

type received struct {
	from string
	to   []string
	data []byte
}

// captureBackend is an in-process SMTP server that records every message.
type captureBackend struct {
	mu       sync.Mutex
	messages []received
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

func (b *captureBackend) all() []received {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]received(nil), b.messages...)
}

type captureSession struct {
	backend *captureBackend
	current received
}

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = data

	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *captureSession) Reset() {
	s.current = received{}
}

func (s *captureSession) Logout() error {
	return nil
}

func startServer(t *testing.T) (*captureBackend, string) {
	t.Helper()

	backend := &captureBackend{}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
		<-done
	})

	return backend, ln.Addr().String()
}

func newService(addr string, poolSize int) *email.EmailService {
	host, port, _ := net.SplitHostPort(addr)
	return email.NewEmailService(&config.Config{
		SMTPHost:       host,
		SMTPPort:       port,
		SMTPFromEmail:  "site@example.com",
		ContactEmailTo: "owner@example.com",
		SMTPPoolSize:   poolSize,
		SMTPTimeout:    5 * time.Second,
	})
}

func sampleData() email.ContactEmailData {
	return email.ContactEmailData{
		SenderName:  "Sean O&#39;Brien",
		SenderEmail: "sean@example.com",
		Subject:     "Hello &amp; welcome",
		Message:     "First line\nSecond line",
		SubmittedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSendContactEmail(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, poolSize := range []int{0, 2} {
		t.Run("pool="+strconv.Itoa(poolSize), func(t *testing.T) {
			backend, addr := startServer(t)
			svc := newService(addr, poolSize)
			defer svc.Close()

			require.True(t, svc.IsConfigured())
			require.NoError(t, svc.SendContactEmail(context.Background(), sampleData()))
			svc.Close()

			msgs := backend.all()
			require.Len(t, msgs, 1)
			assert.Equal(t, "site@example.com", msgs[0].from)
			assert.Equal(t, []string{"owner@example.com"}, msgs[0].to)

			parsed, err := mail.ReadMessage(bytes.NewReader(msgs[0].data))
			require.NoError(t, err)

			subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
			require.NoError(t, err)
			assert.Equal(t, "Portfolio Contact: Hello & welcome", subject)
			assert.Contains(t, parsed.Header.Get("Reply-To"), "sean@example.com")

			raw := string(msgs[0].data)
			assert.Contains(t, raw, "Second line")
			assert.Contains(t, raw, "<br>")
		})
	}
}

func TestSendContactEmail_NotConfigured(t *testing.T) {
	svc := email.NewEmailService(&config.Config{})

	assert.False(t, svc.IsConfigured())
	assert.Error(t, svc.SendContactEmail(context.Background(), sampleData()))
}

func TestSendContactEmail_CancelledContext(t *testing.T) {
	svc := newService("127.0.0.1:2525", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.SendContactEmail(ctx, sampleData())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSendContactEmail_RelayDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	svc := newService(addr, 0)
	assert.Error(t, svc.SendContactEmail(context.Background(), sampleData()))
}

// startSilentRelay accepts connections and never sends a greeting.
func startSilentRelay(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	return ln.Addr().String()
}

func TestSendContactEmail_SilentRelayTimesOut(t *testing.T) {
	for _, poolSize := range []int{0, 2} {
		t.Run("pool="+strconv.Itoa(poolSize), func(t *testing.T) {
			host, port, _ := net.SplitHostPort(startSilentRelay(t))
			svc := email.NewEmailService(&config.Config{
				SMTPHost:       host,
				SMTPPort:       port,
				SMTPFromEmail:  "site@example.com",
				ContactEmailTo: "owner@example.com",
				SMTPPoolSize:   poolSize,
				SMTPTimeout:    200 * time.Millisecond,
			})

			start := time.Now()
			err := svc.SendContactEmail(context.Background(), sampleData())

			assert.Error(t, err)
			assert.Less(t, time.Since(start), 3*time.Second)
		})
	}
}

func TestSendContactEmail_ContextDeadlineBoundsTheSend(t *testing.T) {
	svc := newService(startSilentRelay(t), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := svc.SendContactEmail(ctx, sampleData())

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}
