package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// WebhookExecutor is the subset of [discordgo.Session] used by [Discord].
type WebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts notifications to a Discord channel webhook.
type Discord struct {
	exec     WebhookExecutor
	id       string
	token    string
	username string
}

var _ Notifier = (*Discord)(nil)

// ParseWebhookURL extracts the webhook ID and token from a URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("notify: parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("notify: webhook url must look like https://discord.com/api/webhooks/{id}/{token}")
}

// NewDiscord returns a Discord notifier for webhookURL. A nil exec creates an
// unauthenticated session; webhooks need no bot token.
func NewDiscord(webhookURL string, exec WebhookExecutor) (*Discord, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		s, err := discordgo.New("")
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		exec = s
	}
	return &Discord{exec: exec, id: id, token: token, username: "ringwatch"}, nil
}

// Name implements [Notifier].
func (d *Discord) Name() string { return "discord" }

// Notify implements [Notifier].
func (d *Discord) Notify(ctx context.Context, msg Message) error {
	params := &discordgo.WebhookParams{
		Content:  msg.Text,
		Username: d.username,
	}
	if !msg.Image.Empty() {
		params.Files = []*discordgo.File{{
			Name:        msg.Image.Filename("door"),
			ContentType: msg.Image.ContentType,
			Reader:      bytes.NewReader(msg.Image.Data),
		}}
	}
	if _, err := d.exec.WebhookExecute(d.id, d.token, true, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord webhook: %w", err)
	}
	return nil
}
