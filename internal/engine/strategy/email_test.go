package strategy

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/templates"
)

type fakeMailer struct {
	sent []*Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, cfg *EmailConfig, msg *Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func validEmailConfig() EmailConfig {
	return EmailConfig{
		SMTPHost:  "smtp.example.com",
		SMTPPort:  587,
		FromEmail: "noreply@example.com",
		FromName:  "Workflow",
		To:        []string{"ops@example.com"},
		Subject:   "Run finished",
		Body:      "All done.",
	}
}

func emailContext(cfg EmailConfig) *engine.ExecutionContext {
	return engine.NewContextForNode(TypeEmailNotification).WithConfiguration(EmailConfigKey, cfg)
}

func newEmailStrategy(mailer Mailer, renderer templates.Renderer) *EmailNotificationStrategy {
	return NewEmailNotificationStrategy(mailer, renderer, logger.NewNop(), engine.NopCollector{},
		WithRetryConfig(fastRetryConfig(1)))
}

func TestEmailNotificationStrategy_SendsBody(t *testing.T) {
	mailer := &fakeMailer{}
	s := newEmailStrategy(mailer, nil)
	cfg := validEmailConfig()
	cfg.Cc = []string{"lead@example.com"}
	ec := emailContext(cfg)
	ctx := context.Background()

	require.True(t, s.Preprocess(ctx, ec).IsSuccess())
	result := s.Execute(ctx, ec)
	require.True(t, result.IsSuccess(), result.ErrorMessage)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "All done.", mailer.sent[0].Body)
	assert.Equal(t, []string{"ops@example.com"}, mailer.sent[0].To)

	out, ok := result.OutputData.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, out["recipientCount"])
	assert.Equal(t, "Run finished", out["subject"])
	assert.NotEmpty(t, out["messageId"])
}

func TestEmailNotificationStrategy_RendersTemplate(t *testing.T) {
	store := templates.NewStaticStore(map[string]string{
		"run-summary": "Node {{.node}} finished with {{.rows}} rows.",
	})
	mailer := &fakeMailer{}
	s := newEmailStrategy(mailer, templates.NewTemplateRenderer(store))

	cfg := validEmailConfig()
	cfg.Body = ""
	cfg.TemplateID = "run-summary"
	cfg.TemplateData = map[string]interface{}{"node": "db-1", "rows": 12}
	ec := emailContext(cfg)
	ctx := context.Background()

	require.True(t, s.Preprocess(ctx, ec).IsSuccess())
	require.True(t, s.Execute(ctx, ec).IsSuccess())

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Node db-1 finished with 12 rows.", mailer.sent[0].Body)
}

func TestEmailNotificationStrategy_TemplateDataFallsBackToInput(t *testing.T) {
	store := templates.NewStaticStore(map[string]string{
		"greeting": "Hello {{.name}}",
	})
	mailer := &fakeMailer{}
	s := newEmailStrategy(mailer, templates.NewTemplateRenderer(store))

	cfg := validEmailConfig()
	cfg.Body = ""
	cfg.TemplateID = "greeting"
	ec := emailContext(cfg).WithInput(map[string]interface{}{"name": "ada"})
	ctx := context.Background()

	require.True(t, s.Preprocess(ctx, ec).IsSuccess())
	require.True(t, s.Execute(ctx, ec).IsSuccess())
	assert.Equal(t, "Hello ada", mailer.sent[0].Body)
}

func TestEmailNotificationStrategy_UnknownTemplateFailsPreprocess(t *testing.T) {
	s := newEmailStrategy(&fakeMailer{}, templates.NewTemplateRenderer(templates.NewStaticStore(nil)))

	cfg := validEmailConfig()
	cfg.Body = ""
	cfg.TemplateID = "missing"
	result := s.Preprocess(context.Background(), emailContext(cfg))

	require.Equal(t, engine.StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "template not found")
}

func TestEmailNotificationStrategy_ValidationErrors(t *testing.T) {
	s := newEmailStrategy(&fakeMailer{}, nil)

	cases := []struct {
		name   string
		mutate func(*EmailConfig)
		want   string
	}{
		{
			name:   "no recipients",
			mutate: func(c *EmailConfig) { c.To = nil },
			want:   "At least one recipient is required",
		},
		{
			name:   "invalid recipient",
			mutate: func(c *EmailConfig) { c.To = []string{"not-an-address"} },
			want:   "recipient address 'not-an-address' is not valid",
		},
		{
			name:   "invalid sender",
			mutate: func(c *EmailConfig) { c.FromEmail = "nope" },
			want:   "sender address 'nope' is not valid",
		},
		{
			name:   "missing subject",
			mutate: func(c *EmailConfig) { c.Subject = "  " },
			want:   "subject is required",
		},
		{
			name:   "no body or template",
			mutate: func(c *EmailConfig) { c.Body = "" },
			want:   "either a body or a template id is required",
		},
		{
			name:   "bad port",
			mutate: func(c *EmailConfig) { c.SMTPPort = 0 },
			want:   "SMTP port must be between 1 and 65535",
		},
		{
			name:   "timeout out of range",
			mutate: func(c *EmailConfig) { c.TimeoutSeconds = 301 },
			want:   "timeout must be between 1 second and 5 minutes",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validEmailConfig()
			tc.mutate(&cfg)
			vr := s.validateInputs(context.Background(), emailContext(cfg))
			require.False(t, vr.Valid())
			assert.Contains(t, vr.ErrorMessage(), tc.want)
		})
	}
}

func TestEmailNotificationStrategy_SendFailure(t *testing.T) {
	s := newEmailStrategy(&fakeMailer{err: errors.New("relay rejected the message")}, nil)

	result := s.Execute(context.Background(), emailContext(validEmailConfig()))
	require.Equal(t, engine.StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "relay rejected")
}

// stalledSMTPServer accepts connections and then never sends the greeting.
func stalledSMTPServer(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestSMTPMailer_StalledServerTimesOut(t *testing.T) {
	port := stalledSMTPServer(t)

	s := newEmailStrategy(&SMTPMailer{}, nil)
	cfg := validEmailConfig()
	cfg.SMTPHost = "127.0.0.1"
	cfg.SMTPPort = port
	cfg.TimeoutSeconds = 1

	start := time.Now()
	result := s.Execute(context.Background(), emailContext(cfg))

	assert.Equal(t, engine.StatusTimedOut, result.Status)
	assert.Less(t, time.Since(start), 3*time.Second,
		"the configured timeout bounds the whole SMTP conversation, not just the dial")
}

func TestSMTPMailer_CancellationAbortsConversation(t *testing.T) {
	port := stalledSMTPServer(t)

	s := newEmailStrategy(&SMTPMailer{}, nil)
	cfg := validEmailConfig()
	cfg.SMTPHost = "127.0.0.1"
	cfg.SMTPPort = port

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := s.Execute(ctx, emailContext(cfg))

	assert.Equal(t, engine.StatusCancelled, result.Status)
	assert.Less(t, time.Since(start), 3*time.Second,
		"cancellation closes the connection instead of waiting out the stall")
}

func TestBuildMessage(t *testing.T) {
	raw := string(buildMessage(&Message{
		From:     "noreply@example.com",
		FromName: "Workflow",
		To:       []string{"a@example.com", "b@example.com"},
		Cc:       []string{"c@example.com"},
		Bcc:      []string{"hidden@example.com"},
		Subject:  "Hi",
		Body:     "<b>done</b>",
		IsHTML:   true,
	}))

	assert.Contains(t, raw, "From: Workflow <noreply@example.com>\r\n")
	assert.Contains(t, raw, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, raw, "Cc: c@example.com\r\n")
	assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n<b>done</b>"))

	// Bcc is envelope-only.
	assert.NotContains(t, raw, "hidden@example.com")
}
