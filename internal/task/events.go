package task

type EventKind int

const (
	EventProgress EventKind = iota
	EventStatus
	EventCompleted
	EventError
)

// Event carries an immutable snapshot taken when it was published.
// Subscribers are called from the task's own goroutines.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// Subscribe registers fn for every task event and returns its unsubscribe func.
func (t *Task) Subscribe(fn func(Event)) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subMu.Unlock()
	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

func (t *Task) publish(kind EventKind) {
	t.subMu.Lock()
	if len(t.subs) == 0 {
		t.subMu.Unlock()
		return
	}
	fns := make([]func(Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.Unlock()

	ev := Event{Kind: kind, Snapshot: t.Snapshot()}
	for _, fn := range fns {
		fn(ev)
	}
}
