// Package notify delivers run and alert notifications. SNS is the
// production path; the log notifier serves local runs and tests.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	"github.com/yairfalse/kerava/types"
)

const timeRounding = time.Millisecond

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// SNSAPI is the SNS client surface the notifier needs.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes notifications to an SNS topic.
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
}

// NewSNSNotifier creates an SNS notifier for the given topic.
func NewSNSNotifier(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

// Notify publishes one message.
func (n *SNSNotifier) Notify(ctx context.Context, subject, message string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.topicARN, err)
	}
	return nil
}

// LogNotifier writes notifications to the log instead of a topic.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification at info level.
func (n *LogNotifier) Notify(_ context.Context, subject, message string) error {
	n.logger.Info().Str("subject", subject).Msg(message)
	return nil
}

// RunSummary formats a collection report as a notification.
func RunSummary(report *types.RunReport) (subject, message string) {
	subject = fmt.Sprintf("Inventory collection: %d records, %d/%d tasks succeeded",
		report.RecordsWritten, report.TasksSucceeded, report.TasksTotal)

	message = fmt.Sprintf("Collection run finished in %s.\n\nTasks: %d total, %d succeeded, %d failed.\nRecords written: %d.\n",
		report.Duration().Round(timeRounding), report.TasksTotal, report.TasksSucceeded, report.TasksFailed, report.RecordsWritten)
	for _, failure := range report.Failures {
		message += fmt.Sprintf("\nFAILED %s after %d attempts: %s", failure.Task, failure.Attempts, failure.Error)
	}
	return subject, message
}

// CostAlert formats a threshold breach as a notification.
func CostAlert(totalMonthly, threshold float64) (subject, message string) {
	subject = fmt.Sprintf("Monthly cost alert: $%.2f exceeds $%.2f", totalMonthly, threshold)
	message = fmt.Sprintf("Estimated monthly spend is $%.2f, above the configured alert threshold of $%.2f.\nProjected yearly: $%.2f.\n",
		totalMonthly, threshold, totalMonthly*12)
	return subject, message
}
