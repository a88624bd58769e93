package client

import (
	"LiveChat/entity"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(id string, at time.Time) entity.Message {
	return entity.Message{ID: id, ConversationID: "c1", SenderType: entity.SenderUser, Body: id, CreatedAt: at}
}

func TestMessageList_MergeDedupesAndOrders(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	list := NewMessageList()

	assert.Equal(t, 2, list.Merge(message("b", base.Add(time.Second)), message("a", base.Add(2*time.Second))))
	assert.Equal(t, 1, list.Merge(message("a", base.Add(2*time.Second)), message("c", base)))
	assert.Equal(t, 0, list.Merge(message("c", base)))

	// Same timestamp falls back to id order.
	list.Merge(message("bb", base.Add(time.Second)))

	var ids []string
	for _, m := range list.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"c", "b", "bb", "a"}, ids)
}

func TestMessageList_PendingResolvedByClientID(t *testing.T) {
	list := NewMessageList()
	list.Merge(message("m1", time.Now().Add(-time.Minute)))

	pending := list.AddPending("local-1", "hello", entity.SenderUser)
	assert.Empty(t, pending.ID)
	require.Len(t, list.Messages(), 2)
	assert.Equal(t, 1, list.Pending())

	// A history refresh without the echo keeps the pending entry.
	list.Merge(message("m1", time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, list.Pending())

	echo := message("m2", time.Now())
	echo.ClientID = "local-1"
	echo.Body = "hello"
	list.Merge(echo)

	assert.Equal(t, 0, list.Pending())
	messages := list.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[1].ID)

	// The second copy from the socket is a no-op.
	assert.Equal(t, 0, list.Merge(echo))
	assert.Len(t, list.Messages(), 2)
}

func TestMessageList_DropPending(t *testing.T) {
	list := NewMessageList()
	list.AddPending("a", "one", entity.SenderAgent)
	list.AddPending("b", "two", entity.SenderAgent)
	list.DropPending("a")
	list.DropPending("missing")

	messages := list.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "b", messages[0].ClientID)
}

func TestMessageList_IgnoresMessagesWithoutID(t *testing.T) {
	list := NewMessageList()
	assert.Equal(t, 0, list.Merge(entity.Message{Body: "no id"}))
	assert.Empty(t, list.Messages())
}
