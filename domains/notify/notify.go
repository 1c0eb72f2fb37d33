package notify

import "context"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
	SeverityUrgent  Severity = "urgent"
)

// INotifier is a best-effort alert sink. Implementations swallow and log
// their own delivery failures.
type INotifier interface {
	Notify(ctx context.Context, severity Severity, message string)
}
