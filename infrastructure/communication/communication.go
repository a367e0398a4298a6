package communication

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Notifier posts run reports for operators.
type Notifier interface {
	Info(ctx context.Context, message string) error
	Error(ctx context.Context, message string) error
}

type Slack struct {
	client  *slack.Client
	options SlackOption
}

type SlackOption struct {
	InfoChannelID  string
	ErrorChannelID string
	// APIURL overrides the Slack API base URL.
	APIURL string
}

func NewSlack(token string, options SlackOption) *Slack {
	var opts []slack.Option
	if options.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(options.APIURL))
	}
	client := slack.New(token, opts...)
	return &Slack{client: client, options: options}
}

func (s *Slack) postMessage(ctx context.Context, channelID, message string) error {
	if channelID == "" {
		return nil
	}
	_, _, err := s.client.PostMessageContext(
		ctx,
		channelID,
		slack.MsgOptionText(message, false),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}

func (this *Slack) Info(ctx context.Context, message string) error {
	return this.postMessage(ctx, this.options.InfoChannelID, message)
}

// Error falls back to the info channel when no error channel is set.
func (this *Slack) Error(ctx context.Context, message string) error {
	ch := this.options.ErrorChannelID
	if ch == "" {
		ch = this.options.InfoChannelID
	}
	return this.postMessage(ctx, ch, message)
}

type nop struct{}

func (nop) Info(context.Context, string) error  { return nil }
func (nop) Error(context.Context, string) error { return nil }

// Nop is a Notifier that drops every message.
func Nop() Notifier { return nop{} }
