// Package twiliowhatsapp pushes alarm notifications to a phone through Twilio's WhatsApp
// sender, for setups without a linked whatsmeow device.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const addressPrefix = "whatsapp:"

var (
	ErrMissingCredentials = errors.New("twilio account SID and auth token are required")
	ErrMissingSender      = errors.New("twilio WhatsApp sender number is required")
)

type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

type Option func(*Opts)

func WithAccountSID(sid string) Option  { return func(o *Opts) { o.AccountSID = sid } }
func WithAuthToken(token string) Option { return func(o *Opts) { o.AuthToken = token } }
func WithFromWhats(from string) Option  { return func(o *Opts) { o.FromWhats = from } }

// messageCreator is the slice of the Twilio API the client uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client sends WhatsApp messages from a fixed Twilio sender.
type Client struct {
	api  messageCreator
	from string
}

// NewClient resolves credentials from opts, then from TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN
// and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		FromWhats:  os.Getenv("TWILIO_FROM_NUMBER"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.AccountSID == "" || cfg.AuthToken == "":
		return nil, ErrMissingCredentials
	case strings.TrimSpace(cfg.FromWhats) == "":
		return nil, ErrMissingSender
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Username: cfg.AccountSID, Password: cfg.AuthToken})
	slog.Debug("Twilio.NewClient: ready", "from", WhatsAppAddress(cfg.FromWhats))
	return &Client{api: rest.Api, from: WhatsAppAddress(cfg.FromWhats)}, nil
}

// SendMessage delivers body to the phone number to. The Twilio call itself cannot be
// cancelled, so ctx is only checked before sending.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(WhatsAppAddress(to))
	params.SetBody(body)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio.SendMessage: send failed", "to", to, "error", err)
		return fmt.Errorf("twilio send to %s: %w", to, err)
	}
	if msg != nil && msg.Sid != nil {
		slog.Debug("Twilio.SendMessage: queued", "to", to, "sid", *msg.Sid)
	}
	return nil
}

// WhatsAppAddress turns a phone number into a Twilio WhatsApp address.
func WhatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, addressPrefix) {
		return number
	}
	return addressPrefix + number
}

// MockClient records messages instead of sending them.
type MockClient struct {
	SentMessages []SentMessage
}

type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) SendMessage(_ context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
