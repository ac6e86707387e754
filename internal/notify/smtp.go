package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"
)

// portSubmission — порт SMTP submission, на нём всегда включается STARTTLS.
const portSubmission = 587

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From — адрес отправителя, например "StudyShare <noreply@example.com>"
	From string
	// UseTLS — STARTTLS независимо от порта
	UseTLS bool
	// Timeout — таймаут соединения и всей отправки
	Timeout time.Duration
}

// SMTPNotifier отправляет письма через SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPNotifier создаёт SMTPNotifier. Порт по умолчанию 587.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = portSubmission
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPNotifier{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "smtp_notifier")),
		now:    time.Now,
	}
}

// Send отправляет письмо. STARTTLS при UseTLS или порте 587.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	from, err := mail.ParseAddress(n.cfg.From)
	if err != nil {
		return fmt.Errorf("некорректный адрес отправителя %q: %w", n.cfg.From, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("подключение к SMTP-серверу %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("приветствие SMTP-сервера: %w", err)
	}
	defer client.Close()

	if n.cfg.UseTLS || n.cfg.Port == portSubmission {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("запуск STARTTLS: %w", err)
		}
	}

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("аутентификация SMTP: %w", err)
		}
	}

	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("установка отправителя: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("установка получателя: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("подготовка содержимого письма: %w", err)
	}
	if _, err := w.Write(n.buildMessage(from, msg)); err != nil {
		return fmt.Errorf("запись содержимого письма: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("завершение записи письма: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("завершение SMTP-сессии: %w", err)
	}

	n.logger.Debug("Письмо отправлено",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// buildMessage собирает письмо RFC 5322 с заголовками в фиксированном порядке.
// Тема кодируется RFC 2047, если содержит не-ASCII символы.
func (n *SMTPNotifier) buildMessage(from *mail.Address, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.Bytes()
}
