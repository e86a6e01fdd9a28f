// Package notify delivers best-effort email notifications for workflow
// transitions. Delivery failures are reported to the caller and never roll
// back a committed transition.
package notify

import (
	"context"
	"fmt"
)

// Message is one outbound notification.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Dispatcher sends notification messages.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// ForwardMessage composes the notification for a process routed to a new
// recipient.
func ForwardMessage(processName string, to []string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Process %s is waiting for you", processName),
		Body: fmt.Sprintf(
			"The process %s has been forwarded to you and is pending your action.",
			processName,
		),
	}
}

// RevertMessage composes the notification for a process sent back to an
// earlier step.
func RevertMessage(processName, remarks string, to []string) Message {
	body := fmt.Sprintf("The process %s has been returned to you for rework.", processName)
	if remarks != "" {
		body += "\n\nRemarks: " + remarks
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Process %s was returned", processName),
		Body:    body,
	}
}

// CompletionMessage composes the notification for a completed process.
func CompletionMessage(processName string, to []string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Process %s is complete", processName),
		Body:    fmt.Sprintf("The process %s has completed all workflow steps.", processName),
	}
}
