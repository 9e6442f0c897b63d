package notify

import (
	"context"
	"fmt"
	"sort"

	slacklib "github.com/slack-go/slack"
)

// SlackAPI abstracts the subset of the Slack client used by SlackSink.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackSink posts alerts as attachments to a fixed Slack channel.
type SlackSink struct {
	api       SlackAPI
	channelID string
}

var _ Sink = (*SlackSink)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackSink creates a SlackSink posting to channelID.
func NewSlackSink(api SlackAPI, channelID string) *SlackSink {
	return &SlackSink{api: api, channelID: channelID}
}

// Send posts the alert. Fields are rendered in key order.
func (s *SlackSink) Send(ctx context.Context, alert Alert) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channelID,
		slacklib.MsgOptionText(alert.Title, false),
		slacklib.MsgOptionAttachments(buildAttachment(alert)),
	)
	if err != nil {
		return fmt.Errorf("notify.SlackSink.Send: %w", err)
	}
	return nil
}

func buildAttachment(alert Alert) slacklib.Attachment {
	color := "warning"
	if alert.Severity == SeverityCritical {
		color = "danger"
	}

	keys := make([]string, 0, len(alert.Fields)+1)
	for k := range alert.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slacklib.AttachmentField, 0, len(keys)+1)
	if alert.TenantID != nil {
		fields = append(fields, slacklib.AttachmentField{Title: "tenant", Value: alert.TenantID.String(), Short: true})
	}
	for _, k := range keys {
		fields = append(fields, slacklib.AttachmentField{Title: k, Value: alert.Fields[k], Short: true})
	}

	return slacklib.Attachment{
		Color:  color,
		Title:  alert.Title,
		Text:   alert.Text,
		Fields: fields,
	}
}
