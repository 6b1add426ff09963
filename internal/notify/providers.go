package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/httpclient"
)

// MessagingProvider sends a single title+content message through one
// third-party channel, per blrec's notification/providers.py
// MessagingProvider ABC.
type MessagingProvider interface {
	SendMessage(ctx context.Context, title, content string) error
}

// EmailService sends messages over SMTPS, per blrec's EmailService.
type EmailService struct {
	cfg config.EmailNotifierConfig
}

// NewEmailService constructs an EmailService from its settings.
func NewEmailService(cfg config.EmailNotifierConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// SendMessage sends a plain-text email. net/smtp has no context-aware dial,
// and ctx is not consulted: a cancelled ctx does not abort the TLS dial or
// the SMTP session.
func (s *EmailService) SendMessage(ctx context.Context, subject, content string) error {
	if s.cfg.SrcAddr == "" {
		return errors.New("notify: no source email address configured")
	}
	if s.cfg.DstAddr == "" {
		return errors.New("notify: no destination email address configured")
	}
	if s.cfg.AuthCode == "" {
		return errors.New("notify: no auth code configured")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.SMTPHost})
	if err != nil {
		return fmt.Errorf("notify: dial smtp: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.cfg.SrcAddr, s.cfg.AuthCode, s.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("notify: smtp auth: %w", err)
	}
	if err := client.Mail(s.cfg.SrcAddr); err != nil {
		return fmt.Errorf("notify: smtp mail from: %w", err)
	}
	if err := client.Rcpt(s.cfg.DstAddr); err != nil {
		return fmt.Errorf("notify: smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("notify: smtp data: %w", err)
	}
	defer w.Close()

	msg := fmt.Sprintf("Subject: %s\r\nFrom: %s\r\nTo: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		subject, s.cfg.SrcAddr, s.cfg.DstAddr, content)
	_, err = w.Write([]byte(msg))
	return err
}

// Serverchan sends messages through sctapi.ftqq.com, per blrec's
// notification/providers.py Serverchan.
type Serverchan struct {
	cfg    config.ServerchanNotifierConfig
	client *httpclient.Client
}

// NewServerchan constructs a Serverchan provider.
func NewServerchan(cfg config.ServerchanNotifierConfig, client *httpclient.Client) *Serverchan {
	return &Serverchan{cfg: cfg, client: client}
}

// SendMessage posts title/content as Serverchan's text/desp form fields.
func (s *Serverchan) SendMessage(ctx context.Context, title, content string) error {
	if s.cfg.SendKey == "" {
		return errors.New("notify: no serverchan sendkey configured")
	}

	endpoint := fmt.Sprintf("https://sctapi.ftqq.com/%s.send", s.cfg.SendKey)
	form := url.Values{"text": {title}, "desp": {content}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("notify: serverchan post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: serverchan responded %d", resp.StatusCode)
	}
	return nil
}

// Pushplus sends messages through pushplus.hxtrip.com, per blrec's
// notification/providers.py Pushplus.
type Pushplus struct {
	cfg    config.PushplusNotifierConfig
	client *httpclient.Client
}

const pushplusURL = "http://pushplus.hxtrip.com/send"

// NewPushplus constructs a Pushplus provider.
func NewPushplus(cfg config.PushplusNotifierConfig, client *httpclient.Client) *Pushplus {
	return &Pushplus{cfg: cfg, client: client}
}

type pushplusPayload struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Token    string `json:"token"`
	Topic    string `json:"topic"`
	Template string `json:"template"`
}

type pushplusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SendMessage posts title/content as a Pushplus JSON payload.
func (p *Pushplus) SendMessage(ctx context.Context, title, content string) error {
	if p.cfg.Token == "" {
		return errors.New("notify: no pushplus token configured")
	}

	body, err := json.Marshal(pushplusPayload{
		Title: title, Content: content, Token: p.cfg.Token, Topic: p.cfg.Topic, Template: "html",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushplusURL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("notify: pushplus post: %w", err)
	}
	defer resp.Body.Close()

	var parsed pushplusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("notify: pushplus decode response: %w", err)
	}
	if parsed.Code != 200 {
		return fmt.Errorf("notify: pushplus error %d: %s", parsed.Code, parsed.Msg)
	}
	return nil
}
