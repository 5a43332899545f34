package ingest

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

// chatQueues serializes event processing per chat while letting different
// chats proceed concurrently. Each chat gets a drain goroutine that lives
// for as long as its queue is non-empty.
type chatQueues struct {
	process func(ctx context.Context, ev bus.Event)

	mu     sync.Mutex
	queues map[int64]*chatQueue
}

type chatQueue struct {
	pending []bus.Event
	running bool
}

func newChatQueues(process func(ctx context.Context, ev bus.Event)) *chatQueues {
	return &chatQueues{process: process, queues: make(map[int64]*chatQueue)}
}

func (q *chatQueues) enqueue(ctx context.Context, ev bus.Event) {
	q.mu.Lock()
	cq, ok := q.queues[ev.ChatID]
	if !ok {
		cq = &chatQueue{}
		q.queues[ev.ChatID] = cq
	}
	cq.pending = append(cq.pending, ev)
	start := !cq.running
	if start {
		cq.running = true
	}
	q.mu.Unlock()

	if start {
		go q.drain(ctx, ev.ChatID)
	}
}

func (q *chatQueues) drain(ctx context.Context, chatID int64) {
	for {
		q.mu.Lock()
		cq := q.queues[chatID]
		if len(cq.pending) == 0 {
			cq.running = false
			delete(q.queues, chatID)
			q.mu.Unlock()
			return
		}
		ev := cq.pending[0]
		cq.pending = cq.pending[1:]
		q.mu.Unlock()

		if ctx.Err() != nil {
			continue // draining without work keeps shutdown prompt
		}
		q.process(ctx, ev)
	}
}
