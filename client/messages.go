package client

import (
	"LiveChat/entity"
	"sort"
	"sync"
	"time"
)

// MessageList is the local view of one conversation's log. Server messages
// are merged in, never swapped wholesale, so optimistic messages survive
// until their echo arrives.
type MessageList struct {
	mu        sync.Mutex
	confirmed []entity.Message
	ids       map[string]struct{}
	pending   []entity.Message
}

func NewMessageList() *MessageList {
	return &MessageList{ids: make(map[string]struct{})}
}

// AddPending records a locally sent message that has no server id yet.
func (l *MessageList) AddPending(clientID, body string, sender entity.SenderType) entity.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := entity.Message{
		ClientID:   clientID,
		SenderType: sender,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	l.pending = append(l.pending, msg)
	return msg
}

// DropPending forgets a pending message whose send failed.
func (l *MessageList) DropPending(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removePending(clientID)
}

func (l *MessageList) removePending(clientID string) {
	for i, p := range l.pending {
		if p.ClientID == clientID {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

// Merge adds server messages not seen yet and resolves matching pending
// entries. It returns how many messages were new.
func (l *MessageList) Merge(messages ...entity.Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, m := range messages {
		if m.ID == "" {
			continue
		}
		if m.ClientID != "" {
			l.removePending(m.ClientID)
		}
		if _, seen := l.ids[m.ID]; seen {
			continue
		}
		l.ids[m.ID] = struct{}{}
		l.confirmed = append(l.confirmed, m)
		added++
	}
	if added > 0 {
		sort.SliceStable(l.confirmed, func(i, j int) bool {
			return l.confirmed[i].Before(&l.confirmed[j])
		})
	}
	return added
}

// Messages returns confirmed messages in log order followed by pending ones.
func (l *MessageList) Messages() []entity.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.Message, 0, len(l.confirmed)+len(l.pending))
	out = append(out, l.confirmed...)
	return append(out, l.pending...)
}

func (l *MessageList) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
