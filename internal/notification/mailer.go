package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"vending-fleet-backend/config"
)

// Message is one outbound notification email.
type Message struct {
	To       []string
	From     string
	Subject  string
	HTMLBody string
}

// Mailer is the pluggable mail transport boundary.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
	Provider() string
}

// NewMailer builds the transport selected by configuration. Unknown
// providers fall back to the simulation transport.
func NewMailer(cfg *config.MailConfig) Mailer {
	switch cfg.Provider {
	case "smtp":
		return &smtpMailer{cfg: cfg.SMTP}
	case "http":
		return &httpMailer{
			cfg: cfg.HTTP,
			client: &http.Client{
				Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
			},
		}
	case "", "simulation":
		return &SimulationMailer{}
	default:
		log.Printf("Warning: unknown mail provider %q, using simulation transport", cfg.Provider)
		return &SimulationMailer{}
	}
}

// SimulationMailer logs the message instead of delivering it. It succeeds
// deterministically and backs local development, tests, and the fallback
// path for provider failures.
type SimulationMailer struct {
	// Record keeps delivered messages in Sent so tests can assert on them
	// without a transport double.
	Record bool
	Sent   []*Message
}

// Send records and logs the message.
func (m *SimulationMailer) Send(_ context.Context, msg *Message) error {
	if m.Record {
		m.Sent = append(m.Sent, msg)
	}
	log.Printf("[mail-simulation] to=%s subject=%q (%d bytes)",
		strings.Join(msg.To, ","), msg.Subject, len(msg.HTMLBody))
	return nil
}

// Provider identifies the transport.
func (m *SimulationMailer) Provider() string { return "simulation" }

// smtpMailer delivers through an SMTP relay.
type smtpMailer struct {
	cfg config.SMTPConfig
}

func (m *smtpMailer) Send(_ context.Context, msg *Message) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "From: %s\r\n", msg.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n", msg.Subject)
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.HTMLBody)

	if err := smtp.SendMail(addr, auth, msg.From, msg.To, body.Bytes()); err != nil {
		return fmt.Errorf("smtp delivery via %s failed: %w", addr, err)
	}
	return nil
}

func (m *smtpMailer) Provider() string { return "smtp" }

// httpMailer POSTs the message to an HTTP mail provider.
type httpMailer struct {
	cfg    config.HTTPMail
	client *http.Client
}

type httpMailPayload struct {
	To          []string `json:"to"`
	From        string   `json:"from"`
	Subject     string   `json:"subject"`
	HTMLContent string   `json:"htmlContent"`
}

func (m *httpMailer) Send(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(httpMailPayload{
		To:          msg.To,
		From:        msg.From,
		Subject:     msg.Subject,
		HTMLContent: msg.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail provider returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *httpMailer) Provider() string { return "http" }
