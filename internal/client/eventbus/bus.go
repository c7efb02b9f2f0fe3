// Package eventbus is a small in-process publish/subscribe registry used to
// signal between the session service and whatever renders it.
//
// Emit is synchronous and calls handlers in registration order. Each handler
// runs under recover, so a panicking subscriber is logged and skipped instead
// of silencing the ones registered after it. There is no replay: handlers see
// only events emitted after they subscribed.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/lazydrop/internal/logging"
)

// Event names emitted by the client.
const (
	TransportError      = "transport-error"
	SessionStarted      = "session-started"
	SessionEnded        = "session-ended"
	SessionExpiring     = "session-expiring"
	ParticipantsChanged = "participants-changed"
	FileUploaded        = "file-uploaded"
	FileDownloaded      = "file-downloaded"
	NoteReceived        = "note-received"
	FilesPurged         = "files-purged"
)

type Handler func(payload any)

type entry struct {
	id uint64
	h  Handler
}

type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	nextID   uint64
	logger   logging.Logger
}

func New(logger logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Bus{handlers: make(map[string][]entry), logger: logger}
}

// On registers h for event and returns a function that removes it. Calling
// the returned function more than once is a no-op.
func (b *Bus) On(event string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], entry{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(event, id) })
	}
}

func (b *Bus) remove(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[event]
	for i, e := range list {
		if e.id == id {
			next := make([]entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, event)
			} else {
				b.handlers[event] = next
			}
			return
		}
	}
}

// Emit delivers payload to every handler currently registered for event.
func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	list := b.handlers[event]
	b.mu.RUnlock()

	for _, e := range list {
		b.invoke(event, e.h, payload)
	}
}

func (b *Bus) invoke(event string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(context.Background(), "event handler panicked",
				"event", event, "panic", fmt.Sprint(r))
		}
	}()
	h(payload)
}

// Count returns the number of handlers registered for event.
func (b *Bus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}
