package notify

import (
	"context"
	"fmt"
)

// MessageSender sends a text message to a recipient, as the WhatsApp and Twilio clients do.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Push forwards notifications as chat messages to a single recipient.
type Push struct {
	sender MessageSender
	to     string
}

// NewPush creates a Push notifier.
func NewPush(sender MessageSender, to string) *Push {
	return &Push{sender: sender, to: to}
}

func (p *Push) Notify(ctx context.Context, title, message string) error {
	if err := p.sender.SendMessage(ctx, p.to, title+"\n"+message); err != nil {
		return fmt.Errorf("push notification failed: %w", err)
	}
	return nil
}

// PlayAlertSequence is a no-op; the phone plays its own message sound.
func (p *Push) PlayAlertSequence(context.Context) error { return nil }
