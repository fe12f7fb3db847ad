// Package email renders and delivers operator alert emails.
package email

import "context"

// Sender delivers outgoing email. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendOperatorAlert(ctx context.Context, toEmail string, alert OperatorAlert) error
}

// OperatorAlert describes a request that needs operator attention.
type OperatorAlert struct {
	RequestID string
	Action    string
	OldStatus string
	NewStatus string
	Reason    string
	Link      string
}

// NoopSender discards every message. Used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendOperatorAlert(context.Context, string, OperatorAlert) error { return nil }
