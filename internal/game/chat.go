package game

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/config"
	"skinbet/internal/metrics"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRelay stamps messages with their sender and relays them to everyone.
// The last few messages are kept for newcomers.
type ChatRelay struct {
	*Deps
	cfg     config.Chat
	history []ChatMessage
}

func NewChatRelay(deps *Deps, cfg config.Chat) *ChatRelay {
	return &ChatRelay{Deps: deps, cfg: cfg}
}

func (c *ChatRelay) Send(connID, content string) error {
	conn, ok := c.Registry.Get(connID)
	if !ok {
		return c.reject(metrics.GameChat, EventChatError, connID, ErrNotAuthenticated)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return c.reject(metrics.GameChat, EventChatError, connID, ErrEmptyMessage)
	}
	if utf8.RuneCountInString(content) > c.cfg.MaxLength {
		return c.reject(metrics.GameChat, EventChatError, connID, ErrMessageTooLong)
	}

	msg := ChatMessage{
		ID:        uuid.NewString(),
		UserID:    conn.User.UserID,
		Username:  conn.User.Username,
		Avatar:    conn.User.Avatar,
		Content:   content,
		Timestamp: c.Loop.Now(),
	}
	if c.cfg.HistorySize > 0 {
		c.history = append(c.history, msg)
		if len(c.history) > c.cfg.HistorySize {
			c.history = c.history[len(c.history)-c.cfg.HistorySize:]
		}
	}

	log.WithFields(log.Fields{"user": msg.UserID, "length": len(content)}).Debug("[CHAT] Message relayed")
	c.Bus.BroadcastAll(EventChatMessage, msg)
	return nil
}

// History returns the retained messages, oldest first.
func (c *ChatRelay) History() []ChatMessage {
	return append([]ChatMessage{}, c.history...)
}
