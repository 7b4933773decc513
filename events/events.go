// Package events provides the typed publish/subscribe subject the inspector
// uses to expose connection state changes, history appends and user-facing
// toasts to observers such as a UI layer.
//
// Topics are plain strings; payloads are typed per subscription. A published
// event is only delivered to subscriptions whose type parameter matches the
// event's concrete type, so unrelated subscribers on a shared subject never
// see each other's payloads.
package events

import (
	"context"
	"errors"
	"sync"
)

// ErrCompleted is returned when publishing to a completed subject.
var ErrCompleted = errors.New("subject completed")

const defaultBufferSize = 64

// Subject is a topic-based event bus. The zero value is not usable; create
// one with NewSubject.
type Subject struct {
	mu        sync.RWMutex
	subs      map[string][]*Subscription
	replay    map[string][]interface{}
	replayN   int
	bufSize   int
	completed bool
}

// SubjectOption configures a Subject.
type SubjectOption func(*Subject)

// WithBufferSize sets the per-subscription delivery buffer. A size of zero
// makes delivery synchronous with Publish.
func WithBufferSize(n int) SubjectOption {
	return func(s *Subject) {
		s.bufSize = n
	}
}

// WithReplay keeps the last n events per topic and delivers them to new
// subscribers on that topic.
func WithReplay(n int) SubjectOption {
	return func(s *Subject) {
		s.replayN = n
	}
}

// NewSubject creates an event subject.
func NewSubject(opts ...SubjectOption) *Subject {
	s := &Subject{
		subs:    make(map[string][]*Subscription),
		replay:  make(map[string][]interface{}),
		bufSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscription is one registered handler on a topic.
type Subscription struct {
	subject *Subject
	topic   string
	deliver func(evt interface{})
	ch      chan interface{}
	done    chan struct{}
	once    sync.Once
}

// Unsubscribe removes the subscription from its subject. Buffered events not
// yet handled are dropped.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.subject.remove(sub)
		if sub.done != nil {
			close(sub.done)
		}
	})
}

func (s *Subject) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[sub.topic]
	for i, candidate := range list {
		if candidate == sub {
			s.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Subscribe registers handler for events of type T on topic. Events of other
// types published to the same topic are not delivered. The handler runs on
// the subscription's own goroutine unless the subject's buffer size is zero,
// in which case it runs inline with Publish.
func Subscribe[T any](s *Subject, topic string, handler func(ctx context.Context, evt T) error) *Subscription {
	sub := &Subscription{subject: s, topic: topic}

	dispatch := func(evt interface{}) {
		typed, ok := evt.(T)
		if !ok {
			return
		}
		// Handler errors affect only that subscriber.
		_ = handler(context.Background(), typed)
	}

	if s.bufSize > 0 {
		sub.ch = make(chan interface{}, s.bufSize)
		sub.done = make(chan struct{})
		sub.deliver = func(evt interface{}) {
			select {
			case sub.ch <- evt:
			case <-sub.done:
			}
		}
		go func() {
			for {
				select {
				case evt := <-sub.ch:
					dispatch(evt)
				case <-sub.done:
					return
				}
			}
		}()
	} else {
		sub.deliver = dispatch
	}

	s.mu.Lock()
	s.subs[topic] = append(s.subs[topic], sub)
	replayed := append([]interface{}(nil), s.replay[topic]...)
	s.mu.Unlock()

	for _, evt := range replayed {
		sub.deliver(evt)
	}
	return sub
}

// Publish delivers evt to every type-matching subscription on topic.
func Publish[T any](s *Subject, topic string, evt T) error {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return ErrCompleted
	}
	if s.replayN > 0 {
		buf := append(s.replay[topic], evt)
		if len(buf) > s.replayN {
			buf = buf[len(buf)-s.replayN:]
		}
		s.replay[topic] = buf
	}
	targets := append([]*Subscription(nil), s.subs[topic]...)
	s.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(evt)
	}
	return nil
}

// Complete shuts the subject down. Further publishes fail with ErrCompleted
// and all subscriptions are released.
func Complete(s *Subject) {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return
	}
	s.completed = true
	var all []*Subscription
	for _, list := range s.subs {
		all = append(all, list...)
	}
	s.subs = make(map[string][]*Subscription)
	s.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() {
			if sub.done != nil {
				close(sub.done)
			}
		})
	}
}
