package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ReplayBufferSize is the default number of recent events kept per task id
// for late subscribers, per spec's "replay buffer" requirement.
const ReplayBufferSize = 50

type subscription struct {
	id      uint64
	taskID  string // empty means "all tasks"
	types   map[Type]bool // empty/nil means "all types"
	handler Handler
}

func (s *subscription) matches(e Event) bool {
	if s.taskID != "" && s.taskID != e.TaskID {
		return false
	}
	if len(s.types) > 0 && !s.types[e.Type] {
		return false
	}
	return true
}

// Bus is the process-wide in-memory event bus. It is an explicit
// collaborator, constructed once by internal/app and passed to every
// component that publishes or subscribes.
type Bus struct {
	log *logrus.Logger

	mu       sync.RWMutex
	subs     map[uint64]*subscription
	nextSub  uint64
	replay   map[string][]Event // per task id, bounded ring
	bufSize  int
}

// New creates a Bus with the default replay buffer size.
func New(log *logrus.Logger) *Bus {
	return &Bus{
		log:     log,
		subs:    make(map[uint64]*subscription),
		replay:  make(map[string][]Event),
		bufSize: ReplayBufferSize,
	}
}

// Publish delivers e to every matching subscriber and appends it to the
// per-task replay buffer. Delivery is synchronous and at-most-once per
// subscription; a handler's panic is recovered so one bad subscriber
// cannot take down the publisher or its siblings.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	buf := append(b.replay[e.TaskID], e)
	if len(buf) > b.bufSize {
		buf = buf[len(buf)-b.bufSize:]
	}
	b.replay[e.TaskID] = buf
	handlers := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(e) {
			handlers = append(handlers, s)
		}
	}
	b.mu.Unlock()

	for _, s := range handlers {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"task_id": e.TaskID,
				"event":   e.Type,
				"panic":   r,
			}).Error("event subscriber panicked")
		}
	}()
	s.handler(e)
}

// Subscribe registers handler for events matching taskID (empty = all
// tasks) and types (empty = all types). It immediately replays the last
// buffered events for taskID to the new subscriber, in emit order, before
// returning. The returned function unsubscribes.
func (b *Bus) Subscribe(taskID string, types []Type, handler Handler) (unsubscribe func()) {
	typeSet := make(map[Type]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	sub := &subscription{id: id, taskID: taskID, types: typeSet, handler: handler}
	b.subs[id] = sub
	var backlog []Event
	if taskID != "" {
		backlog = append(backlog, b.replay[taskID]...)
	}
	b.mu.Unlock()

	for _, e := range backlog {
		if sub.matches(e) {
			b.deliver(sub, e)
		}
	}

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Replay returns up to limit of the most recent buffered events for
// taskID, oldest first. limit <= 0 means "all buffered".
func (b *Bus) Replay(taskID string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buf := b.replay[taskID]
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	out := make([]Event, len(buf))
	copy(out, buf)
	return out
}
