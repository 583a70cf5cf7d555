// Package worker delivers queued budget alerts by mail.
package worker

import (
	"context"
	"fmt"

	"github.com/abhisheksenku/paisatrack/internal/alerts"
	"github.com/abhisheksenku/paisatrack/internal/amqp"
	"github.com/abhisheksenku/paisatrack/internal/core"
	applog "github.com/abhisheksenku/paisatrack/internal/log"
)

// Sender is the mail surface the worker needs. Implemented by
// mail.Mailer.
type Sender interface {
	Send(to []string, subject, body string) error
}

// MailWorker turns queued BudgetAlertMessages into outgoing mail.
type MailWorker struct {
	sender Sender
	logger *applog.Logger
}

func NewMailWorker(sender Sender, logger *applog.Logger) *MailWorker {
	return &MailWorker{
		sender: sender,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleAlertMessage processes a single budget alert from the queue.
// A returned error requeues the message; malformed alerts are dropped
// with a nil return so they do not loop forever.
func (w *MailWorker) HandleAlertMessage(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	if msg.Email == "" {
		w.logger.WarnContext(ctx, "dropping alert without recipient",
			applog.FieldUserID, msg.UserID,
			applog.FieldMonthKey, msg.MonthKey)
		return nil
	}

	subject, body := alerts.ComposeAlertMail(msg.Name,
		core.Money{Cents: msg.SpentCents},
		core.Money{Cents: msg.ThresholdCents},
		msg.MonthKey)

	if err := w.sender.Send([]string{msg.Email}, subject, body); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}

	w.logger.InfoContext(ctx, "alert mail sent",
		applog.FieldUserID, msg.UserID,
		applog.FieldMonthKey, msg.MonthKey)

	return nil
}
