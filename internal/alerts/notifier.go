package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisheksenku/paisatrack/internal/amqp"
	"github.com/abhisheksenku/paisatrack/internal/core"
)

// Publisher is the queue surface QueueNotifier needs.
type Publisher interface {
	PublishBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error
}

// QueueNotifier hands alerts to the broker for the mail worker.
type QueueNotifier struct {
	publisher Publisher
}

func NewQueueNotifier(publisher Publisher) *QueueNotifier {
	return &QueueNotifier{publisher: publisher}
}

func (n *QueueNotifier) Notify(ctx context.Context, alert Alert) error {
	msg := &amqp.BudgetAlertMessage{
		UserID:         alert.UserID,
		Email:          alert.Email,
		Name:           alert.Name,
		SpentCents:     alert.Spent.Cents,
		ThresholdCents: alert.Threshold.Cents,
		MonthKey:       alert.MonthKey,
		Message:        alert.Message,
		Timestamp:      time.Now(),
	}
	if err := n.publisher.PublishBudgetAlert(ctx, msg); err != nil {
		return fmt.Errorf("queue budget alert: %w", err)
	}
	return nil
}

// Sender is the mail surface MailNotifier needs.
type Sender interface {
	Send(to []string, subject, body string) error
}

// MailNotifier mails alerts directly, for deployments without a broker.
type MailNotifier struct {
	sender Sender
}

func NewMailNotifier(sender Sender) *MailNotifier {
	return &MailNotifier{sender: sender}
}

func (n *MailNotifier) Notify(_ context.Context, alert Alert) error {
	if alert.Email == "" {
		return fmt.Errorf("no email address for user %s", alert.UserID)
	}
	subject, body := ComposeAlertMail(alert.Name, alert.Spent, alert.Threshold, alert.MonthKey)
	if err := n.sender.Send([]string{alert.Email}, subject, body); err != nil {
		return fmt.Errorf("mail budget alert: %w", err)
	}
	return nil
}

// ComposeAlertMail builds the subject and plain text body for one
// threshold notification. The mail worker reuses it so queued and
// direct delivery read identically.
func ComposeAlertMail(name string, spent, threshold core.Money, monthKey string) (subject, body string) {
	subject = fmt.Sprintf("Budget alert for %s", monthKey)
	greeting := "Hi"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s", name)
	}
	body = fmt.Sprintf(
		"%s,\n\n"+
			"You have spent %s so far in %s, which exceeds your alert threshold of %s.\n\n"+
			"You can review your expenses and adjust the threshold in your account settings.\n\n"+
			"PaisaTrack",
		greeting,
		core.FormatRupees(spent),
		monthKey,
		core.FormatRupees(threshold),
	)
	return subject, body
}
