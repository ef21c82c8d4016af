package datastore

import (
	"iter"
	"sync"

	"github.com/photonchat/photon/pkg/model"
)

// Mirror is the in-memory copy of recent message history, in commit order.
//
// Messages are appended before their row is written and carry ID 0 until the
// writer patches in the assigned id. Readers never see pending messages.
type Mirror struct {
	mu   sync.RWMutex
	msgs []*model.Message
	byID map[int64]*model.Message
}

func NewMirror() *Mirror {
	return &Mirror{byID: make(map[int64]*model.Message)}
}

// Len returns the number of committed and pending messages.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}

// Get returns a copy of the committed message with the given id.
func (m *Mirror) Get(id int64) (model.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.byID[id]
	if !ok {
		return model.Message{}, false
	}
	return *msg, true
}

// Backward yields copies of committed messages from newest to oldest. The
// mirror is read-locked for the duration of the iteration.
//
// Accepted messages still waiting for their id are skipped. Their broadcast
// follows the commit, so a reader that misses one here still receives it.
func (m *Mirror) Backward() iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for i := len(m.msgs) - 1; i >= 0; i-- {
			if m.msgs[i].ID == 0 {
				continue
			}
			if !yield(*m.msgs[i]) {
				return
			}
		}
	}
}

// Messages returns copies of all committed messages, oldest first.
func (m *Mirror) Messages() []model.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Message, 0, len(m.msgs))
	for _, msg := range m.msgs {
		if msg.ID != 0 {
			out = append(out, *msg)
		}
	}
	return out
}

func (m *Mirror) append(msg *model.Message) {
	m.mu.Lock()
	m.msgs = append(m.msgs, msg)
	if msg.ID != 0 {
		m.byID[msg.ID] = msg
	}
	m.mu.Unlock()
}

// assignID marks a pending message committed.
func (m *Mirror) assignID(msg *model.Message, id int64) {
	m.mu.Lock()
	msg.ID = id
	m.byID[id] = msg
	m.mu.Unlock()
}

// remove drops a pending message whose write failed.
func (m *Mirror) remove(msg *model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.msgs) - 1; i >= 0; i-- {
		if m.msgs[i] == msg {
			m.msgs = append(m.msgs[:i], m.msgs[i+1:]...)
			break
		}
	}
	if msg.ID != 0 {
		delete(m.byID, msg.ID)
	}
}

// update applies fn to the message with the given id, if mirrored.
func (m *Mirror) update(id int64, fn func(*model.Message)) (model.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return model.Message{}, false
	}
	fn(msg)
	return *msg, true
}
