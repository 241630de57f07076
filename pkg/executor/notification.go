package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// Notification dispatches the conversation's latest result to a channel
// through the notification capability.
type Notification struct {
	gateway ports.CapabilityGateway
}

// NewNotification creates the notification dispatch executor.
func NewNotification(gateway ports.CapabilityGateway) *Notification {
	return &Notification{gateway: gateway}
}

// Name implements ports.Executor.
func (e *Notification) Name() string { return domain.ExecutorNotify }

// Execute implements ports.Executor.
func (e *Notification) Execute(ctx context.Context, task ports.Task) (*ports.ExecutorResult, error) {
	channel := channelFromMessage(task.UserMessage)
	body := notificationBody(task)

	ports.ProgressFromContext(ctx).Report(ctx,
		fmt.Sprintf("dispatching notification via %s", channel), nil)

	result, err := e.gateway.Call(ctx, capability.CapSendNotification, map[string]any{
		"channel":   channel,
		"recipient": "team",
		"message":   body,
	})
	if err != nil {
		return nil, &domain.ExecutorFailure{
			Executor: e.Name(),
			Kind:     domain.FailureCapability,
			Detail:   err.Error(),
			Err:      err,
		}
	}

	delivered := map[string]any{"delivered": true, "channel": channel}
	if m, ok := result.(map[string]any); ok {
		delivered = m
	}

	return &ports.ExecutorResult{
		Messages: []domain.Message{{
			Role: domain.RoleAssistant,
			Text: fmt.Sprintf("Sent a %s notification with the latest results.", channel),
		}},
		Scratch: delivered,
		Summary: fmt.Sprintf("notification dispatched via %s", channel),
	}, nil
}

func channelFromMessage(message string) string {
	lower := strings.ToLower(message)
	for _, channel := range []string{"slack", "webhook", "sms", "email"} {
		if strings.Contains(lower, channel) {
			return channel
		}
	}
	return "email"
}

// notificationBody prefers the rendered report, then the latest assistant
// message, then a generic line.
func notificationBody(task ports.Task) string {
	if reported := task.State.Executors[domain.ExecutorReport]; reported.Scratch != nil {
		if text, ok := reported.Scratch[scratchReport].(string); ok && text != "" {
			if i := strings.IndexByte(text, '\n'); i > 0 {
				return strings.TrimPrefix(text[:i], "# ")
			}
			return text
		}
	}
	if last := task.State.LastAssistantMessage(); last != "" {
		return last
	}
	return "Conversation update available."
}
