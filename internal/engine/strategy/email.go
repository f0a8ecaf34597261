package strategy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/templates"
)

const (
	TypeEmailNotification = "email.notification"

	// EmailConfigKey is the well-known configuration key for this strategy.
	EmailConfigKey = "EmailConfig"

	propRenderedBody = "RenderedBody"
)

type EmailConfig struct {
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty"`
	UseSSL       bool   `json:"use_ssl"`

	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name,omitempty"`

	To  []string `json:"to"`
	Cc  []string `json:"cc,omitempty"`
	Bcc []string `json:"bcc,omitempty"`

	Subject string `json:"subject"`

	// Body and TemplateID are alternatives; exactly one source of content
	// is required. TemplateData feeds the template when TemplateID is set.
	Body         string                 `json:"body,omitempty"`
	TemplateID   string                 `json:"template_id,omitempty"`
	TemplateData map[string]interface{} `json:"template_data,omitempty"`

	IsHTML         bool `json:"is_html"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty"`
}

func (c *EmailConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *EmailConfig) recipients() []string {
	out := make([]string, 0, len(c.To)+len(c.Cc)+len(c.Bcc))
	out = append(out, c.To...)
	out = append(out, c.Cc...)
	out = append(out, c.Bcc...)
	return out
}

// Message is one outbound email, fully resolved.
type Message struct {
	From     string
	FromName string
	To       []string
	Cc       []string
	Bcc      []string
	Subject  string
	Body     string
	IsHTML   bool
}

// Mailer delivers a message over some transport. The SMTP implementation is
// the production one; tests inject a recording fake.
type Mailer interface {
	Send(ctx context.Context, cfg *EmailConfig, msg *Message) error
}

// EmailNotificationStrategy sends one email per node run. Template-backed
// bodies are rendered during preprocess so template errors fail fast.
type EmailNotificationStrategy struct {
	*Lifecycle
	mailer   Mailer
	renderer templates.Renderer
}

func NewEmailNotificationStrategy(mailer Mailer, renderer templates.Renderer, log logger.Logger, metrics engine.Collector, opts ...Option) *EmailNotificationStrategy {
	if mailer == nil {
		mailer = &SMTPMailer{}
	}
	s := &EmailNotificationStrategy{mailer: mailer, renderer: renderer}
	s.Lifecycle = NewLifecycle(TypeEmailNotification, log, metrics, Hooks{
		ValidateInputs: s.validateInputs,
		SetupContext:   s.renderBody,
	}, opts...)
	return s
}

func (s *EmailNotificationStrategy) validateInputs(ctx context.Context, ec *engine.ExecutionContext) *engine.ValidationResult {
	vr := engine.NewValidationResult()

	cfg, err := configFrom[EmailConfig](ec, EmailConfigKey)
	if err != nil {
		return vr.AddError(err.Error())
	}

	if strings.TrimSpace(cfg.SMTPHost) == "" {
		vr.AddError("SMTP host is required")
	}
	if cfg.SMTPPort < 1 || cfg.SMTPPort > 65535 {
		vr.AddError("SMTP port must be between 1 and 65535")
	}
	if cfg.TimeoutSeconds != 0 && (cfg.TimeoutSeconds < 1 || cfg.TimeoutSeconds > 300) {
		vr.AddError("timeout must be between 1 second and 5 minutes")
	}

	if _, err := mail.ParseAddress(cfg.FromEmail); err != nil {
		vr.AddError(fmt.Sprintf("sender address '%s' is not valid", cfg.FromEmail))
	}

	if len(cfg.To) == 0 {
		vr.AddError("At least one recipient is required")
	}
	for _, address := range cfg.recipients() {
		if _, err := mail.ParseAddress(address); err != nil {
			vr.AddError(fmt.Sprintf("recipient address '%s' is not valid", address))
		}
	}

	if strings.TrimSpace(cfg.Subject) == "" {
		vr.AddError("subject is required")
	}

	if cfg.Body == "" && cfg.TemplateID == "" {
		vr.AddError("either a body or a template id is required")
	}
	if cfg.Body != "" && cfg.TemplateID != "" {
		vr.AddWarning("both body and template id are set; the template takes precedence")
	}
	if cfg.TemplateID != "" && s.renderer == nil {
		vr.AddError("template id is set but no template renderer is configured")
	}

	return vr
}

// renderBody resolves and renders a template-backed body ahead of execute.
// InputData serves as the template data when none is configured.
func (s *EmailNotificationStrategy) renderBody(ctx context.Context, ec *engine.ExecutionContext) error {
	cfg, err := configFrom[EmailConfig](ec, EmailConfigKey)
	if err != nil {
		return err
	}
	if cfg.TemplateID == "" {
		return nil
	}

	data := cfg.TemplateData
	if data == nil {
		if input, ok := ec.InputData.(map[string]interface{}); ok {
			data = input
		}
	}

	body, err := s.renderer.Render(ctx, cfg.TemplateID, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	ec.SetProperty(propRenderedBody, body)
	return nil
}

func (s *EmailNotificationStrategy) Execute(ctx context.Context, ec *engine.ExecutionContext) *engine.ExecutionResult {
	cfg, err := configFrom[EmailConfig](ec, EmailConfigKey)
	if err != nil {
		return engine.FailedResult("", err, 0)
	}

	body := cfg.Body
	if rendered := ec.StringProperty(propRenderedBody); rendered != "" {
		body = rendered
	}

	msg := &Message{
		From:     cfg.FromEmail,
		FromName: cfg.FromName,
		To:       cfg.To,
		Cc:       cfg.Cc,
		Bcc:      cfg.Bcc,
		Subject:  cfg.Subject,
		Body:     body,
		IsHTML:   cfg.IsHTML,
	}

	out, duration, err := s.RunProtected(ctx, cfg.Timeout(), func(callCtx context.Context) (interface{}, error) {
		if err := s.mailer.Send(callCtx, cfg, msg); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"messageId":      uuid.New().String(),
			"sentAt":         time.Now().UTC(),
			"recipientCount": len(cfg.recipients()),
			"subject":        cfg.Subject,
		}, nil
	})
	if err != nil {
		return s.FailureResult(ctx, ec, err, duration)
	}

	return engine.CompletedResult(out, duration)
}

// SMTPMailer delivers over SMTP, optionally wrapping the connection in TLS.
type SMTPMailer struct{}

// Send runs the whole SMTP conversation under ctx: the connection deadline
// covers everything after the dial, and cancellation closes the connection so
// in-flight reads abort promptly.
func (m *SMTPMailer) Send(ctx context.Context, cfg *EmailConfig, msg *Message) error {
	err := m.send(ctx, cfg, msg)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (m *SMTPMailer) send(ctx context.Context, cfg *EmailConfig, msg *Message) error {
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)

	var dialer net.Dialer
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		rawConn.SetDeadline(deadline)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rawConn.Close()
		case <-done:
		}
	}()

	conn := rawConn
	if cfg.UseSSL {
		conn = tls.Client(conn, &tls.Config{ServerName: cfg.SMTPHost})
	}

	client, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if cfg.SMTPUsername != "" {
		auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range append(append(append([]string{}, msg.To...), msg.Cc...), msg.Bcc...) {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(buildMessage(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles the RFC 5322 payload. Bcc recipients go only on the
// envelope, never into the headers.
func buildMessage(msg *Message) []byte {
	from := msg.From
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.From)
	}

	contentType := "text/plain; charset=UTF-8"
	if msg.IsHTML {
		contentType = "text/html; charset=UTF-8"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&sb, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&sb, "Subject: %s\r\n", msg.Subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: %s\r\n", contentType)
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)

	return []byte(sb.String())
}
