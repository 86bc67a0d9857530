package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/storytree/internal/config"
)

// discordSession is the part of *discordgo.Session used here. Posting only
// needs the REST API, so the gateway is never opened.
type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts events as embeds to one channel.
type Discord struct {
	sess    discordSession
	channel string
	log     *slog.Logger
	base    time.Duration
	limit   time.Duration
}

// NewDiscord returns a Discord notifier using the bot token in cfg.
func NewDiscord(cfg config.ChatConfig, logger *slog.Logger) (*Discord, error) {
	if cfg.BotToken == "" || cfg.Channel == "" {
		return nil, fmt.Errorf("discord: bot_token and channel are required")
	}
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return newDiscord(dg, cfg.Channel, logger), nil
}

func newDiscord(sess discordSession, channel string, logger *slog.Logger) *Discord {
	return &Discord{
		sess:    sess,
		channel: channel,
		log:     logger.With("notifier", "discord"),
		base:    2 * time.Second,
		limit:   time.Minute,
	}
}

// Notify implements Notifier.
func (d *Discord) Notify(ctx context.Context, e Event) error {
	data := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{eventToEmbed(e)}}
	for attempt := 0; ; attempt++ {
		_, err := d.sess.ChannelMessageSendComplex(d.channel, data)
		if err == nil {
			return nil
		}
		var restErr *discordgo.RESTError
		limited := errors.As(err, &restErr) && restErr.Response != nil &&
			restErr.Response.StatusCode == http.StatusTooManyRequests
		if !limited || attempt == maxRetries {
			return fmt.Errorf("discord: send message: %w", err)
		}
		wait := backoff(attempt, d.base, d.limit)
		d.log.Warn("rate limited", "attempt", attempt+1, "retry_in", wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func eventToEmbed(e Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Body,
		Color:       parseHexColor(e.Severity.Color()),
	}
	for _, f := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts "#36a64f" to 0x36a64f; bad input yields 0.
func parseHexColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
