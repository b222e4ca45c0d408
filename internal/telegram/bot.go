// Package telegram is the messaging-channel integration: it posts questions
// to a Telegram group as forum topics and routes topic replies back to the
// question manager.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxTopicNameLen is Telegram's limit for forum topic names.
const maxTopicNameLen = 128

// Bot implements the question manager's Messenger against the Telegram Bot
// API. Forum-topic methods postdate the typed API surface of the client
// library, so they go through its raw request escape hatch.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New creates a Bot for the given token and target group chat. The chat
// must be a supergroup with topics enabled for threaded questions; without
// that, topic creation fails and the manager falls back to plain group
// messages.
func New(token string, chatID int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to Telegram: %w", err)
	}
	return &Bot{api: api, chatID: chatID}, nil
}

// Username returns the bot's username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// CreateTopic creates a forum topic and returns its thread ID.
func (b *Bot) CreateTopic(_ context.Context, title string) (string, error) {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", b.chatID)
	params["name"] = truncateTopicName(title)

	resp, err := b.api.MakeRequest("createForumTopic", params)
	if err != nil {
		return "", fmt.Errorf("create forum topic: %w", err)
	}

	var topic struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return "", fmt.Errorf("parse createForumTopic response: %w", err)
	}
	if topic.MessageThreadID == 0 {
		return "", fmt.Errorf("createForumTopic returned no thread ID")
	}
	return strconv.FormatInt(topic.MessageThreadID, 10), nil
}

// SendToTopic posts a message into an existing forum topic.
func (b *Bot) SendToTopic(_ context.Context, topicID, text string) error {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", b.chatID)
	params["message_thread_id"] = topicID
	params["text"] = text

	if _, err := b.api.MakeRequest("sendMessage", params); err != nil {
		return fmt.Errorf("send to topic %s: %w", topicID, err)
	}
	return nil
}

// SendToGroup posts a message to the group with no thread association.
func (b *Bot) SendToGroup(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to group: %w", err)
	}
	return nil
}

// fetchUpdates long-polls the Bot API for updates after the given offset.
func (b *Bot) fetchUpdates(offset int64, timeoutSec int) ([]update, error) {
	params := make(tgbotapi.Params)
	params.AddNonZero64("offset", offset)
	params.AddNonZero("timeout", timeoutSec)
	params["allowed_updates"] = `["message"]`

	resp, err := b.api.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	var updates []update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("parse updates: %w", err)
	}
	return updates, nil
}

func truncateTopicName(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTopicNameLen {
		return title
	}
	return string(runes[:maxTopicNameLen-1]) + "…"
}
