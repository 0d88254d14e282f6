package memory

import (
	"context"
	"strings"
	"sync"

	"booking-saga/internal/broker"
)

// Bus is an in-process topic exchange used by tests and the
// single-process demo. It mimics the production transport's semantics:
// a message whose routing key matches any of a queue's bound patterns
// is delivered to that queue, whichever pattern the publisher had in
// mind, and deliveries run off the publisher's stack so a handler can
// publish while holding its own locks.
type Bus struct {
	mu     sync.RWMutex
	queues map[string]*queue

	deliveries chan delivery
	pending    sync.WaitGroup
	closeOnce  sync.Once
}

type queue struct {
	patterns []string
	handler  broker.Handler
}

type delivery struct {
	handler broker.Handler
	msg     broker.Message
}

func New() *Bus {
	b := &Bus{
		queues:     make(map[string]*queue),
		deliveries: make(chan delivery, 1024),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for d := range b.deliveries {
		// Handler errors mean redelivery in production; the in-process
		// bus drops them, tests assert on observable state instead.
		_ = d.handler(context.Background(), d.msg)
		b.pending.Done()
	}
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.pending.Wait()
		close(b.deliveries)
	})
}

// Wait blocks until every published message, including any cascade it
// triggered, has been handled.
func (b *Bus) Wait() {
	b.pending.Wait()
}

func (b *Bus) Subscribe(name, pattern string, handler broker.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = &queue{}
		b.queues[name] = q
	}
	q.patterns = append(q.patterns, pattern)
	if handler != nil {
		q.handler = handler
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.RLock()
	var targets []broker.Handler
	for _, q := range b.queues {
		if q.handler == nil {
			continue
		}
		for _, p := range q.patterns {
			if MatchTopic(p, routingKey) {
				targets = append(targets, q.handler)
				break
			}
		}
	}
	b.mu.RUnlock()

	msg := broker.Message{RoutingKey: routingKey, Body: body}
	b.pending.Add(len(targets))
	for _, h := range targets {
		b.deliveries <- delivery{handler: h, msg: msg}
	}
	return nil
}

// Deliver pushes a message straight into one queue's consumer,
// bypassing pattern matching and the dispatch queue. Tests use it to
// reproduce the any-matching-binding misrouting hazard.
func (b *Bus) Deliver(ctx context.Context, queueName string, msg broker.Message) error {
	b.mu.RLock()
	q, ok := b.queues[queueName]
	b.mu.RUnlock()
	if !ok || q.handler == nil {
		return nil
	}
	return q.handler(ctx, msg)
}

// MatchTopic implements AMQP-style topic matching: words separated by
// dots, "*" matches exactly one word, "#" matches zero or more.
func MatchTopic(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}
