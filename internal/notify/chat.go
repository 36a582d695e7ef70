package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SendTimeout bounds every outbound notification request.
const SendTimeout = 10 * time.Second

// --- Discord ---

const discordColor = 0x00ff00

type Discord struct {
	WebhookURL string
	Client     *http.Client
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
}

func (d *Discord) Name() string { return "Discord" }
func (d *Discord) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title(),
		Description: "Change detected at " + msg.Timestamp(),
		URL:         msg.JobURL,
		Color:       discordColor,
		Fields: []discordField{
			{Name: "Changes", Value: Truncate(msg.Diff, DiscordDiffLimit), Inline: false},
		},
	}
	payload := map[string]interface{}{"embeds": []discordEmbed{embed}}
	return postJSON(ctx, d.Client, d.WebhookURL, payload)
}

// --- Slack ---

type Slack struct {
	WebhookURL string
	Client     *http.Client
}

type slackAttachment struct {
	Title     string `json:"title"`
	TitleLink string `json:"title_link"`
	Text      string `json:"text"`
	Color     string `json:"color"`
}

func (s *Slack) Name() string { return "Slack" }
func (s *Slack) Send(ctx context.Context, msg Message) error {
	attachment := slackAttachment{
		Title:     msg.JobName,
		TitleLink: msg.JobURL,
		Text:      fmt.Sprintf("Change detected at %s\n\n%s", msg.Timestamp(), Truncate(msg.Diff, SlackDiffLimit)),
		Color:     "good",
	}
	payload := map[string]interface{}{
		"text":        msg.Title(),
		"attachments": []slackAttachment{attachment},
	}
	return postJSON(ctx, s.Client, s.WebhookURL, payload)
}

// postJSON is a shared helper used by providers. A nil client gets a fresh
// one bounded by SendTimeout.
func postJSON(ctx context.Context, client *http.Client, url string, data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = &http.Client{Timeout: SendTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}
