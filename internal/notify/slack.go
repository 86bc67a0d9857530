package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/storytree/internal/config"
)

// slackClient is the part of the Slack web API used here.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts events as message attachments to one channel.
type Slack struct {
	client  slackClient
	channel string
	log     *slog.Logger
	base    time.Duration
}

// NewSlack returns a Slack notifier using the bot token in cfg.
func NewSlack(cfg config.ChatConfig, logger *slog.Logger) (*Slack, error) {
	if cfg.BotToken == "" || cfg.Channel == "" {
		return nil, fmt.Errorf("slack: bot_token and channel are required")
	}
	return newSlack(slackapi.New(cfg.BotToken), cfg.Channel, logger), nil
}

func newSlack(client slackClient, channel string, logger *slog.Logger) *Slack {
	return &Slack{
		client:  client,
		channel: channel,
		log:     logger.With("notifier", "slack"),
		base:    time.Second,
	}
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, e Event) error {
	options := slackOptions(e)
	for attempt := 0; ; attempt++ {
		_, _, err := s.client.PostMessage(s.channel, options...)
		if err == nil {
			return nil
		}
		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return fmt.Errorf("slack: post message: %w", err)
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = backoff(attempt, s.base, 30*time.Second)
		}
		s.log.Warn("rate limited", "attempt", attempt+1, "retry_in", wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// slackOptions renders e as a fallback text plus one attachment.
func slackOptions(e Event) []slackapi.MsgOption {
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(e.Title, false),
		slackapi.MsgOptionAttachments(eventToAttachment(e)),
	}
}

func eventToAttachment(e Event) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    e.Title,
		Text:     e.Body,
		Color:    e.Severity.Color(),
		Fallback: e.Title,
	}
	for _, f := range e.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}
