// Package toast keeps the queue of transient user notifications. Each toast
// removes itself after its duration unless dismissed earlier.
package toast

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/oklog/ulid/v2"
)

// Listener is called synchronously whenever a toast is shown.
type Listener func(models.Toast)

type Queue struct {
	mu              sync.Mutex
	items           []models.Toast
	timers          map[string]*time.Timer
	listeners       []Listener
	defaultDuration time.Duration
	now             func() time.Time
	closed          bool
}

func NewQueue(defaultDuration time.Duration) *Queue {
	if defaultDuration <= 0 {
		defaultDuration = 5 * time.Second
	}
	return &Queue{
		timers:          make(map[string]*time.Timer),
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// OnShow registers a listener for newly shown toasts.
func (q *Queue) OnShow(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Show enqueues t, schedules its removal and returns its id. A zero Duration
// uses the queue default; a zero ID gets a fresh ULID.
func (q *Queue) Show(t models.Toast) string {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if t.Duration <= 0 {
		t.Duration = q.defaultDuration
	}
	if t.Severity == "" {
		t.Severity = models.SeverityInfo
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return t.ID
	}
	t.CreatedAt = q.now()
	q.items = append(q.items, t)
	id := t.ID
	q.timers[id] = time.AfterFunc(t.Duration, func() { q.Dismiss(id) })
	listeners := append([]Listener(nil), q.listeners...)
	q.mu.Unlock()

	for _, l := range listeners {
		l(t)
	}
	return id
}

func (q *Queue) Success(msg string) string {
	return q.Show(models.Toast{Message: msg, Severity: models.SeveritySuccess})
}

func (q *Queue) Info(msg string) string {
	return q.Show(models.Toast{Message: msg, Severity: models.SeverityInfo})
}

// Error shows an error toast with an optional action.
func (q *Queue) Error(msg string, action *models.ToastAction) string {
	return q.Show(models.Toast{Message: msg, Severity: models.SeverityError, Action: action})
}

// Dismiss removes the toast with id. It reports whether the toast was present.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the toasts currently displayed, oldest first.
func (q *Queue) Active() []models.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.Toast(nil), q.items...)
}

// Close cancels all pending removals and drops every toast. Later Show calls
// are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.items = nil
	q.closed = true
}
