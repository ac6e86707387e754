// Пакет notify — отправка уведомлений пользователям по email.
// SMTPNotifier отправляет письма через SMTP-сервер,
// LogNotifier только пишет их в лог (SMTP не настроен).
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Message — письмо в одном экземпляре.
type Message struct {
	// To — адрес получателя
	To string
	// Subject — тема
	Subject string
	// Body — текст письма (text/plain)
	Body string
}

// validate проверяет обязательные поля письма.
func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("получатель не указан")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("тема письма не указана")
	}
	return nil
}

// Notifier — отправитель уведомлений.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier пишет письма в лог вместо отправки.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "log_notifier"))}
}

// Send логирует письмо.
func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	n.logger.Info("Письмо не отправлено: SMTP не настроен",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
