package outbound

import (
	"context"
	"sync"
)

// Recorder is a Sender that keeps every message in memory.  Err, when set,
// is returned for every send after recording the attempt.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
}

// Send records m and returns the configured failure, if any.
func (r *Recorder) Send(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return r.Err
}

// Messages returns a snapshot of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// To returns the messages addressed to phone.
func (r *Recorder) To(phone string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.To == phone {
			out = append(out, m)
		}
	}
	return out
}

// Count returns how many messages of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, m := range r.Messages() {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent message, or the zero Message.
func (r *Recorder) Last() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return Message{}
	}
	return r.msgs[len(r.msgs)-1]
}

// Reset drops the recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
