// Package mailer sends status-change notifications over SMTP. Delivery is
// fire-and-forget from the caller's point of view; a failed send is logged
// and never blocks or rolls back the transition that triggered it.
package mailer

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"

	"github.com/hoangvu/atelierdesk/internal/domain"
)

type Mailer struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

// FromEnv builds a mailer from SMTP_* env vars. Returns nil when SMTP_HOST
// is unset, which disables notifications.
func FromEnv() *Mailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil
	}
	port := 587
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil && p > 0 {
		port = p
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = os.Getenv("SMTP_USER")
	}
	return &Mailer{
		dialer: gomail.NewDialer(host, port, os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASSWORD")),
		from:   from,
		to:     os.Getenv("NOTIFY_TO"),
	}
}

// NotifyStatusChange mails the back office that an order moved.
func (m *Mailer) NotifyStatusChange(o *domain.Order, to domain.Status) {
	if m == nil || m.to == "" {
		return
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", fmt.Sprintf("Order %s -> %s", o.Code, to))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Order %s for %s moved to %s.\nTotal %d, deposit %d, remaining %d.",
		o.Code, o.CustomerName, to, o.Total, o.DepositAmount, o.Remaining))
	if err := m.dialer.DialAndSend(msg); err != nil {
		log.Warn().Err(err).Str("order", o.Code).Msg("status mail")
	}
}
