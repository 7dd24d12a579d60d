package game

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_RelaysWithSenderMetadata(t *testing.T) {
	h := newHarness(t, nil, nil)
	alice := h.join("alice", "0")
	bob := h.join("bob", "0")

	require.NoError(t, h.platform.ChatRelay().Send(alice.connID, "  gl everyone  "))

	var msg ChatMessage
	bob.out.last(t, EventChatMessage, &msg)
	assert.Equal(t, "alice", msg.UserID)
	assert.Equal(t, "alice-name", msg.Username)
	assert.Equal(t, "gl everyone", msg.Content)
	assert.True(t, msg.Timestamp.Equal(epoch))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, 1, alice.out.count(EventChatMessage))
}

func TestChat_Rejections(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.MaxLength = 5
	h := newHarness(t, cfg, nil)
	alice := h.join("alice", "0")
	chat := h.platform.ChatRelay()

	assert.ErrorIs(t, chat.Send(alice.connID, "   "), ErrEmptyMessage)
	assert.ErrorIs(t, chat.Send(alice.connID, "toolong"), ErrMessageTooLong)
	// runes, not bytes
	assert.NoError(t, chat.Send(alice.connID, "héllo"))
	assert.Equal(t, 2, alice.out.count(EventChatError))

	out := &captureSender{}
	anon := h.platform.Connect(out)
	assert.ErrorIs(t, chat.Send(anon, "hi"), ErrNotAuthenticated)
	assert.Equal(t, 1, out.count(EventChatError))
	assert.Equal(t, 0, out.count(EventChatMessage))
}

func TestChat_HistoryIsBoundedAndSentOnConnect(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.HistorySize = 3
	h := newHarness(t, cfg, nil)
	alice := h.join("alice", "0")
	chat := h.platform.ChatRelay()

	for _, m := range []string{"one", "two", "three", "four"} {
		require.NoError(t, chat.Send(alice.connID, m))
	}
	history := chat.History()
	require.Len(t, history, 3)
	assert.Equal(t, "two", history[0].Content)
	assert.Equal(t, "four", history[2].Content)

	out := &captureSender{}
	h.platform.Connect(out)
	var replay []ChatMessage
	out.last(t, EventChatHistory, &replay)
	require.Len(t, replay, 3)
	assert.Equal(t, strings.Join([]string{"two", "three", "four"}, ","),
		replay[0].Content+","+replay[1].Content+","+replay[2].Content)
}
