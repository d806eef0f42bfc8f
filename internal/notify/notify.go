// Package notify sends a failure notification when a job's final
// scheduled run errors and the record has been removed, adapting
// the teacher repo's magic-link email sender to a different trigger.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Notifier is notified once per job removal that followed a handler
// error, so an operator watching a mailbox learns a scheduled job is gone
// and its last run failed.
type Notifier interface {
	JobFailed(ctx context.Context, jobType, externalID string, cause error) error
}

// LogNotifier logs instead of sending — used in ENV=local.
type LogNotifier struct {
	logger *slog.Logger
}

func (n *LogNotifier) JobFailed(_ context.Context, jobType, externalID string, cause error) error {
	n.logger.Warn("job removed after failing final run (local dev)",
		"job_type", jobType, "job_id", externalID, "cause", cause)
	return nil
}

// ResendNotifier sends a notification email via the Resend API — used in
// staging/production.
type ResendNotifier struct {
	client *resend.Client
	from   string
	to     string
}

func (n *ResendNotifier) JobFailed(ctx context.Context, jobType, externalID string, cause error) error {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: fmt.Sprintf("job %s/%s removed after failing its final run", jobType, externalID),
		Html:    fmt.Sprintf("<p>job type <b>%s</b>, id <b>%s</b> was removed after its last scheduled run failed:</p><pre>%s</pre>", jobType, externalID, cause.Error()),
	}
	_, err := n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	return nil
}

// New returns a LogNotifier for ENV=local, ResendNotifier otherwise. to is
// the operator mailbox that receives failure notifications.
func New(env, apiKey, from, to string, logger *slog.Logger) Notifier {
	if env == "local" {
		return &LogNotifier{logger: logger}
	}
	return &ResendNotifier{
		client: resend.NewClient(apiKey),
		from:   from,
		to:     to,
	}
}
