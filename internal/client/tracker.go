package client

import (
	"context"
	"sync"

	"filmstrip/internal/ws"
)

// Tracker folds progress events into per-token state and reports when every
// tracked render has reached a terminal message.
type Tracker struct {
	mu      sync.Mutex
	states  map[string]ws.Message
	pending map[string]struct{}
}

// NewTracker tracks the given upload tokens.
func NewTracker(tokens []string) *Tracker {
	t := &Tracker{
		states:  make(map[string]ws.Message, len(tokens)),
		pending: make(map[string]struct{}, len(tokens)),
	}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		t.pending[token] = struct{}{}
	}
	return t
}

// Observe records a message. It returns true once no tracked token remains
// unfinished. Messages for unknown tokens are ignored.
func (t *Tracker) Observe(msg ws.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Token != "" {
		if _, tracked := t.pending[msg.Token]; tracked || t.states[msg.Token].Type != "" {
			t.states[msg.Token] = msg
			if msg.Type == ws.TypeComplete || msg.Type == ws.TypeError {
				delete(t.pending, msg.Token)
			}
		}
	}
	return len(t.pending) == 0
}

// Remaining reports how many tokens still lack a terminal message.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Result returns the last message observed for token.
func (t *Tracker) Result(token string) (ws.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg, ok := t.states[token]
	return msg, ok
}

// Failed lists the tokens whose renders ended in an error message.
func (t *Tracker) Failed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var failed []string
	for token, msg := range t.states {
		if msg.Type == ws.TypeError {
			failed = append(failed, token)
		}
	}
	return failed
}

// Follow consumes connection events until every token is terminal, the
// connection gives up, or the context ends. onUpdate runs for each message
// touching a tracked token; it may be nil.
func Follow(ctx context.Context, conn *Conn, tokens []string, onUpdate func(ws.Message)) (*Tracker, error) {
	tracker := NewTracker(tokens)
	if tracker.Remaining() == 0 {
		return tracker, nil
	}
	for {
		select {
		case <-ctx.Done():
			return tracker, ctx.Err()
		case msg, ok := <-conn.Events():
			if !ok {
				return tracker, conn.Err()
			}
			done := tracker.Observe(msg)
			if onUpdate != nil && msg.Token != "" {
				if _, tracked := tracker.Result(msg.Token); tracked {
					onUpdate(msg)
				}
			}
			if done {
				return tracker, nil
			}
		}
	}
}
