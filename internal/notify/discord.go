package notify

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// discordMaxContent is the webhook message length limit.
const discordMaxContent = 2000

// DiscordSender posts to a Discord channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: senderTimeout},
	}
}

type discordMessage struct {
	Content string `json:"content"`
	// Suppress the automatic @mention parsing of market titles.
	AllowedMentions struct {
		Parse []string `json:"parse"`
	} `json:"allowed_mentions"`
}

// Send posts the title in bold followed by message, cut to the webhook limit
// on a rune boundary.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	msg := discordMessage{Content: truncate(fmt.Sprintf("**%s**\n%s", title, message), discordMaxContent)}
	msg.AllowedMentions.Parse = []string{}
	_, err := postJSON(ctx, d.client, "discord", d.webhookURL, msg)
	return err
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

// truncate shortens s to at most limit bytes, ending in "..." when cut.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
