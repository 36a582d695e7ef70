package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// telegramAPIURL is the Bot API base; tests point it at an httptest server.
var telegramAPIURL = tele.DefaultApiURL

// Telegram posts to the Bot API sendMessage method through an offline bot,
// so no getMe round trip happens before the message.
type Telegram struct {
	bot    *tele.Bot
	client *http.Client
	chatID string
}

// chatRecipient accepts both numeric ids and @channel names.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// NewTelegram builds a Telegram channel. client may be nil.
func NewTelegram(botToken, chatID string, client *http.Client) (*Telegram, error) {
	if client == nil {
		client = &http.Client{Timeout: SendTimeout}
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     telegramAPIURL,
		Token:   botToken,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, client: client, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "Telegram" }
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(chatRecipient(t.chatID), telegramText(msg), tele.ModeMarkdown)
	return err
}

func telegramText(msg Message) string {
	text := fmt.Sprintf("🔔 *Website Change Detected*\n\n"+
		"*Site:* %s\n"+
		"*URL:* %s\n"+
		"*Time:* %s\n\n"+
		"*Changes:*\n%s",
		msg.JobName, msg.JobURL, msg.Timestamp(), Truncate(msg.Diff, TelegramDiffLimit))
	return strings.TrimSpace(text)
}
