package telegram

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

// pollTimeoutSec is the long-poll window for getUpdates.
const pollTimeoutSec = 30

// update mirrors the slice of the Bot API update payload the listener
// cares about. The typed client structs predate forum threads, hence the
// hand-rolled decode.
type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID       int64 `json:"message_id"`
	MessageThreadID int64 `json:"message_thread_id"`
	From            *struct {
		IsBot     bool   `json:"is_bot"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

// AnswerRouter accepts operator replies for routing to waiting sessions.
// Satisfied by the question manager's DeliverAnswer.
type AnswerRouter interface {
	DeliverAnswer(threadID, text string) bool
}

// updateSource abstracts the long-poll transport so the routing logic can
// be exercised without the network.
type updateSource interface {
	fetchUpdates(offset int64, timeoutSec int) ([]update, error)
}

// Listener long-polls Telegram for operator messages and routes text
// replies in question threads back to the answer router. Messages outside
// the configured chat, from bots, without text, or outside any thread are
// dropped.
type Listener struct {
	source updateSource
	chatID int64
	router AnswerRouter
	offset int64
}

// NewListener creates a Listener reading from bot and delivering to router.
func NewListener(bot *Bot, router AnswerRouter) *Listener {
	return &Listener{source: bot, chatID: bot.chatID, router: router}
}

// Run polls until ctx is canceled. Poll errors are logged and retried
// after a short backoff; a flaky network should not kill answer delivery.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("telegram listener stopped: %w", err)
		}

		updates, err := l.source.fetchUpdates(l.offset, pollTimeoutSec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telegram: poll failed: %v\n", err)
			select {
			case <-ctx.Done():
				return fmt.Errorf("telegram listener stopped: %w", ctx.Err())
			case <-time.After(3 * time.Second):
			}
			continue
		}

		l.processUpdates(updates)
	}
}

// processUpdates advances the poll offset past every update and routes the
// ones that look like operator answers.
func (l *Listener) processUpdates(updates []update) {
	for _, u := range updates {
		if u.UpdateID >= l.offset {
			l.offset = u.UpdateID + 1
		}

		msg := u.Message
		if msg == nil || msg.Chat.ID != l.chatID {
			continue
		}
		if msg.From != nil && msg.From.IsBot {
			continue
		}
		// Voice notes, stickers and the like carry no text; only typed
		// replies are answers.
		if msg.Text == "" {
			continue
		}
		if msg.MessageThreadID == 0 {
			continue
		}

		threadID := strconv.FormatInt(msg.MessageThreadID, 10)
		if !l.router.DeliverAnswer(threadID, msg.Text) {
			fmt.Fprintf(os.Stderr, "telegram: reply in thread %s matched no pending question\n", threadID)
		}
	}
}
