// Package sessions serialises agent turns per chat session. Each
// (connector, target) pair maps to a stable session key; at most one turn
// runs per key, with later messages queued FIFO.
package sessions

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Key builds the stable session identifier for a connector target.
func Key(connectorID, targetID string) string {
	return connectorID + ":" + targetID
}

// SplitKey is the inverse of Key.
func SplitKey(key string) (connectorID, targetID string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// Turn is the work item a session runs: one inbound message routed into an
// agent, producing the reply text.
type Turn func(ctx context.Context) (string, error)

// ReplyFunc receives the completed turn's reply for delivery.
type ReplyFunc func(sessionKey, reply string, err error)

// maxQueuedTurns bounds the per-session backlog; beyond it new messages
// are dropped with a warning rather than growing without limit.
const maxQueuedTurns = 32

// Router enforces single-writer discipline per session key. Enqueued
// turns for one key run strictly in arrival order; different keys run
// concurrently.
type Router struct {
	mu       sync.Mutex
	sessions map[string]*session
	reply    ReplyFunc
	wg       sync.WaitGroup
}

type session struct {
	queue   chan queuedTurn
	running bool
}

type queuedTurn struct {
	ctx  context.Context
	turn Turn
}

func NewRouter(reply ReplyFunc) *Router {
	return &Router{sessions: map[string]*session{}, reply: reply}
}

// Enqueue schedules a turn for a session. Returns false when the session
// backlog is full.
func (r *Router) Enqueue(ctx context.Context, key string, turn Turn) bool {
	r.mu.Lock()
	s := r.sessions[key]
	if s == nil {
		s = &session{queue: make(chan queuedTurn, maxQueuedTurns)}
		r.sessions[key] = s
	}
	select {
	case s.queue <- queuedTurn{ctx: ctx, turn: turn}:
	default:
		r.mu.Unlock()
		slog.Warn("session backlog full, dropping message", "session", key)
		return false
	}
	if !s.running {
		s.running = true
		r.wg.Add(1)
		go r.drain(key, s)
	}
	r.mu.Unlock()
	return true
}

// drain runs queued turns for one session until the queue empties.
func (r *Router) drain(key string, s *session) {
	defer r.wg.Done()
	for {
		select {
		case item := <-s.queue:
			reply, err := item.turn(item.ctx)
			if r.reply != nil {
				r.reply(key, reply, err)
			}
		default:
			r.mu.Lock()
			// Re-check under the lock so an Enqueue racing with shutdown
			// of this drainer is not stranded.
			select {
			case item := <-s.queue:
				r.mu.Unlock()
				reply, err := item.turn(item.ctx)
				if r.reply != nil {
					r.reply(key, reply, err)
				}
				continue
			default:
			}
			s.running = false
			r.mu.Unlock()
			return
		}
	}
}

// Pending reports queued (not yet started) turns for a session.
func (r *Router) Pending(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[key]; s != nil {
		return len(s.queue)
	}
	return 0
}

// Wait blocks until all in-flight session drains finish. Used at shutdown.
func (r *Router) Wait() {
	r.wg.Wait()
}
