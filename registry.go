// Copyright 2023 The NATS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package natscore

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// sinkChanLen bounds the per-subscription delivery queue. A full or
// abandoned consumer must not stall the demultiplexer (§4.2), so pushes
// past this point are dropped rather than blocked on.
const sinkChanLen = 512

// sinkFrame is what flows through a SubscriptionSink's channel: a
// delivered message, the CLOSE sentinel, or a terminal error (currently
// only *SubscriptionReachedMaxMsgsError).
type sinkFrame struct {
	msg    *Message
	closed bool
	term   error
}

// SubscriptionSink is the write end of a single-producer (Demultiplexer),
// single-consumer (caller) queue backing one subscription's message
// sequence, plus its max-messages accounting (§3).
type SubscriptionSink struct {
	Cmd Subscribe

	ch chan sinkFrame

	mu        sync.Mutex
	maxCount  *uint64
	delivered uint64
}

func newSubscriptionSink(cmd Subscribe) *SubscriptionSink {
	return &SubscriptionSink{
		Cmd: cmd,
		ch:  make(chan sinkFrame, sinkChanLen),
	}
}

// push is called by the Demultiplexer. It never blocks: a full channel
// means a slow or abandoned consumer, and the message is dropped.
func (s *SubscriptionSink) push(m *Message) bool {
	select {
	case s.ch <- sinkFrame{msg: m}:
		return true
	default:
		return false
	}
}

// pushTerm pushes a terminal error frame (e.g. max-messages reached),
// best-effort. Since it is enqueued immediately after the message whose
// delivery triggered it, ordering is preserved.
func (s *SubscriptionSink) pushTerm(err error) {
	select {
	case s.ch <- sinkFrame{term: err}:
	default:
	}
}

// closeSink pushes the CLOSE sentinel, best-effort.
func (s *SubscriptionSink) closeSink() {
	select {
	case s.ch <- sinkFrame{closed: true}:
	default:
		// Channel is full; the consumer will eventually drain it and see
		// no more messages once the registry entry is gone anyway.
	}
}

// setMax records an advisory max-messages threshold (from UNSUB), mutated
// in place rather than requiring the caller to hold the original sink.
func (s *SubscriptionSink) setMax(max uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxCount = &max
}

// accountDelivery increments delivered_count and reports whether this was
// the message that reached max_count (invariant: delivered_count <=
// max_count when set; reaching equality deletes the entry, per §3).
func (s *SubscriptionSink) accountDelivery() (max uint64, reached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered++
	if s.maxCount != nil && s.delivered >= *s.maxCount {
		return *s.maxCount, true
	}
	return 0, false
}

// Registry maps subscription id to SubscriptionSink. Shared between the
// Demultiplexer (reader), request/reply cleanup, and user
// subscribe/unsubscribe calls. Insertion order is irrelevant; a sid must
// be unique for the lifetime of its entry (§3).
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*SubscriptionSink
	log  *zap.Logger
}

func newRegistry(log *zap.Logger) *Registry {
	return &Registry{subs: make(map[string]*SubscriptionSink), log: log}
}

// insert registers a fresh sink for cmd.Sid and returns it.
func (r *Registry) insert(cmd Subscribe) *SubscriptionSink {
	sink := newSubscriptionSink(cmd)
	r.mu.Lock()
	r.subs[cmd.Sid] = sink
	r.mu.Unlock()
	return sink
}

// get looks up sid under a read lock.
func (r *Registry) get(sid string) (*SubscriptionSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[sid]
	return s, ok
}

// remove drops the entry for sid, if any. Used for explicit unsubscribe
// and request/reply cleanup.
func (r *Registry) remove(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, sid)
}

// deliver routes one inbound message to sid's sink, performing the
// max-messages accounting and eviction described in §4.2/§4.6: once
// delivered_count reaches max_count the entry is removed and a terminal
// SubscriptionReachedMaxMsgsError is enqueued right after the message
// that tipped it over.
func (r *Registry) deliver(sid string, m *Message) {
	r.mu.RLock()
	sink, ok := r.subs[sid]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if !sink.push(m) {
		return
	}
	if max, reached := sink.accountDelivery(); reached {
		r.remove(sid)
		sink.pushTerm(&SubscriptionReachedMaxMsgsError{Max: max})
	}
}

// setMax records an advisory max-messages threshold; a no-op if sid is
// unknown (§4.6 unsubscribe).
func (r *Registry) setMax(sid string, max uint64) {
	r.mu.RLock()
	sink, ok := r.subs[sid]
	r.mu.RUnlock()
	if ok {
		sink.setMax(max)
	}
}

// sids returns a snapshot of every currently registered subscription id,
// used to check invariant 8 (sid set stable across a subscribe_on_reconnect
// reconnect) and to drive replay.
func (r *Registry) sids() []Subscribe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscribe, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s.Cmd)
	}
	return out
}

// closeAll pushes CLOSE into every sink and clears the map, used when
// subscribe_on_reconnect is false (§4.7).
func (r *Registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, sink := range r.subs {
		sink.closeSink()
		if r.log != nil {
			r.log.Debug("closing sink on reconnect", zap.String("sid", sid), zap.String("subject", sink.Cmd.Subject))
		}
	}
	r.subs = make(map[string]*SubscriptionSink)
}

// Subscription is the caller-facing handle returned by Client.Subscribe.
// It holds a weak logical reference to its registry entry: once the
// entry is dropped, NextMsg observes termination (§3 "Ownership summary").
type Subscription struct {
	Cmd    Subscribe
	client *Client
	sink   *SubscriptionSink
}

// NextMsg blocks until a message is delivered, the subscription
// terminates (CLOSE sentinel / registry eviction), or ctx is done. It is
// non-restartable: once it returns a terminal error, every subsequent
// call returns the same class of error.
func (s *Subscription) NextMsg(ctx context.Context) (*Message, error) {
	select {
	case frame, ok := <-s.sink.ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if frame.closed || frame.term != nil {
			// Put the terminal frame back so later calls see it too.
			select {
			case s.sink.ch <- frame:
			default:
			}
			if frame.closed {
				return nil, ErrConnectionClosed
			}
			return nil, frame.term
		}
		return frame.msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes interest in the subscription's subject. See
// Client.Unsubscribe for semantics around maxMsgs.
func (s *Subscription) Unsubscribe(maxMsgs *uint64) error {
	return s.client.Unsubscribe(UnsubscribeCmd{Sid: s.Cmd.Sid, MaxMsgs: maxMsgs})
}
