// Package slack provides the 'slack_notify' action: it posts a message to
// a Slack incoming webhook. Typically wired as a pipeline sink with an
// all_done or one_success trigger rule so failures still get reported.
package slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/registry"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for a slack_notify task.
type Input struct {
	WebhookURL string `hcl:"webhook_url"`
	Message    string `hcl:"message,optional"`
	// MessageFrom names a run-context value holding the message, as
	// "task_id.key". It takes precedence over Message, so an upstream
	// task can build the report text.
	MessageFrom string `hcl:"message_from,optional"`
	// Channel overrides the webhook's default channel when set.
	Channel string `hcl:"channel,optional"`
}

type payload struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Run posts the message to the webhook.
func (m *Module) Run(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	in, ok := input.(*Input)
	if !ok {
		return nil, fmt.Errorf("slack_notify: unexpected input type %T", input)
	}
	logger := ctxlog.FromContext(ctx)

	message, err := resolveMessage(rc, in)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	resp, err := client.R().
		SetContext(ctx).
		SetBody(payload{Text: message, Channel: in.Channel}).
		Post(in.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("posting slack notification: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("posting slack notification: slack returned %s", resp.Status())
	}

	logger.Info("Slack notification sent.", "channel", in.Channel)
	return &task.Output{}, nil
}

// resolveMessage picks the message text from the run context reference or
// the literal argument.
func resolveMessage(rc *runctx.Context, in *Input) (string, error) {
	if in.MessageFrom == "" {
		if in.Message == "" {
			return "", fmt.Errorf("slack_notify: one of message or message_from is required")
		}
		return in.Message, nil
	}
	i := strings.LastIndexByte(in.MessageFrom, '.')
	if i <= 0 || i == len(in.MessageFrom)-1 {
		return "", fmt.Errorf("slack_notify: message_from %q is not of the form task_id.key", in.MessageFrom)
	}
	msg, err := rc.ReadString(in.MessageFrom[:i], in.MessageFrom[i+1:])
	if err != nil {
		return "", fmt.Errorf("slack_notify: %w", err)
	}
	return msg, nil
}

// Register registers the handler with the app registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("slack_notify", &registry.Handler{
		NewInput: func() any { return new(Input) },
		Run:      m.Run,
	})
}
