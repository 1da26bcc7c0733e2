// Copyright 2012 Apcera Inc. All rights reserved.
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
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const oobChanLen = 64

// Client is a connected NATS-protocol client engine (§1-§4). It owns one
// Connection across its lifetime, transparently rebound on reconnect, a
// Registry of live subscription sinks, and the background goroutines
// (read loop, Control Loop, liveness pinger) that keep both moving.
type Client struct {
	opts Options
	log  *zap.Logger
	ids  *idGen

	conn     *Connection
	registry *Registry

	senderMu sync.RWMutex
	snd      *sender

	statusMu sync.Mutex
	status   Status

	serverInfoMu sync.Mutex
	serverInfo   *ServerInfo

	endpointsMu sync.Mutex
	endpoints   []string

	pingOutstanding int64 // atomic

	oobCh chan *Op

	reconnectHandlersMu sync.Mutex
	reconnectHandlers   map[string]ConnHandler

	closeOnce   sync.Once
	closeCh     chan struct{}
	cancelClose context.CancelFunc
	closeCtxV   context.Context
}

// PublishCmd is the argument to Client.Publish (§4.6).
type PublishCmd struct {
	Subject string
	ReplyTo string
	Data    []byte
}

// SubscribeCmd is the argument to Client.Subscribe (§4.6).
type SubscribeCmd struct {
	Subject string
	Queue   string
}

// UnsubscribeCmd is the argument to Client.Unsubscribe (§4.6). A nil
// MaxMsgs unsubscribes immediately; a non-nil MaxMsgs sets (or updates)
// the subscription's advisory auto-unsubscribe threshold.
type UnsubscribeCmd struct {
	Sid     string
	MaxMsgs *uint64
}

// newClient dials the first reachable candidate endpoint, binds the
// Connection, and starts generation 0's background goroutines. The
// CONNECT handshake itself runs asynchronously off the first INFO frame
// (§4.4); newClient returns once the transport is live, without waiting
// for the handshake to finish, so Status briefly reads Connecting on a
// freshly returned Client.
func newClient(o Options) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		opts:              o,
		log:               o.Logger,
		ids:               newIDGen(),
		registry:          newRegistry(o.Logger),
		endpoints:         append([]string(nil), o.ClusterURIs...),
		oobCh:             make(chan *Op, oobChanLen),
		reconnectHandlers: make(map[string]ConnHandler),
		closeCh:           make(chan struct{}),
		cancelClose:       cancel,
		closeCtxV:         ctx,
		status:            StatusConnecting,
	}
	c.conn = newConnection(o.Logger, c.triggerReconnect)

	tr, url, err := c.dialInitial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	c.conn.bind(tr, url)
	c.snd = c.rebuildBindings(0)

	go c.runPinger(c.closeCh)

	return c, nil
}

// dialInitial resolves and dials the initial candidate set. With
// EnsureConnect, dial failures retry indefinitely on ReconnectTimeout
// spacing (§6); otherwise the first failure is returned as an error
// wrapping ErrNoRouteToHost (and, if a dial was attempted, the last
// underlying dial error).
func (c *Client) dialInitial(ctx context.Context) (transport, string, error) {
	if !c.opts.EnsureConnect {
		return c.dialOnce(ctx)
	}
	for {
		tr, url, err := c.dialOnce(ctx)
		if err == nil {
			return tr, url, nil
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(c.reconnectTimeout()):
		}
	}
}

// Status returns the client's current handshake-aware connection state.
func (c *Client) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.statusMu.Lock()
	prev := c.status
	c.status = s
	c.statusMu.Unlock()
	if prev == s {
		return
	}
	switch s {
	case StatusConnected:
		if c.opts.ReconnectedCB != nil && prev == StatusReconnecting {
			go c.opts.ReconnectedCB(c)
		}
	case StatusDisconnected:
		if c.opts.DisconnectedCB != nil {
			go c.opts.DisconnectedCB(c)
		}
	}
}

func (c *Client) currentSender() *sender {
	c.senderMu.RLock()
	defer c.senderMu.RUnlock()
	return c.snd
}

func (c *Client) setSender(s *sender) {
	c.senderMu.Lock()
	c.snd = s
	c.senderMu.Unlock()
}

func (c *Client) closed() bool {
	return c.Status() == StatusClosed
}

func (c *Client) closeCtx() context.Context {
	return c.closeCtxV
}

func (c *Client) reconnectTimeout() time.Duration {
	if c.opts.ReconnectTimeout > 0 {
		return c.opts.ReconnectTimeout
	}
	return defaultReconnectWaitMs * time.Millisecond
}

func (c *Client) endpointsSnapshot() []string {
	c.endpointsMu.Lock()
	defer c.endpointsMu.Unlock()
	out := make([]string, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

// tlsConfigFor derives a per-candidate TLS config so the server-name
// used for certificate verification matches the endpoint actually being
// dialed, even though resolveCandidates may expand one hostname into
// several IP-address candidates.
func (c *Client) tlsConfigFor(cand candidate) *tls.Config {
	if !c.opts.TLSRequired {
		return nil
	}
	base := c.opts.TLSConfig
	if base == nil {
		base = &tls.Config{}
	}
	cfg := base.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = cand.url.Hostname()
	}
	return cfg
}

// AddReconnectHandler registers fn, keyed by id, to run after every
// successful reconnect (§6). Re-registering an id replaces the handler.
func (c *Client) AddReconnectHandler(id string, fn ConnHandler) {
	c.reconnectHandlersMu.Lock()
	c.reconnectHandlers[id] = fn
	c.reconnectHandlersMu.Unlock()
}

// RemoveReconnectHandler unregisters the handler previously registered
// under id, if any.
func (c *Client) RemoveReconnectHandler(id string) {
	c.reconnectHandlersMu.Lock()
	delete(c.reconnectHandlers, id)
	c.reconnectHandlersMu.Unlock()
}

// Publish sends a PUB frame. A payload larger than the server's
// advertised max_payload is rejected before anything reaches the wire
// (§4.6, §8 scenario 5); otherwise Publish is fire-and-forget, matching
// the wire protocol's lack of a PUB acknowledgement.
func (c *Client) Publish(cmd PublishCmd) error {
	if limit, ok := c.maxPayload(); ok && int64(len(cmd.Data)) > limit {
		return &MaxPayloadOverflowError{Limit: limit}
	}
	c.currentSender().send(&Op{Kind: OpPub, Pub: &Publish{
		Subject: cmd.Subject,
		ReplyTo: cmd.ReplyTo,
		Data:    cmd.Data,
	}})
	return nil
}

func (c *Client) maxPayload() (int64, bool) {
	c.serverInfoMu.Lock()
	defer c.serverInfoMu.Unlock()
	if c.serverInfo == nil || c.serverInfo.MaxPayload <= 0 {
		return 0, false
	}
	return c.serverInfo.MaxPayload, true
}

// Subscribe registers interest in cmd.Subject (optionally within
// cmd.Queue) and sends SUB. The returned Subscription's sink begins
// receiving matching MSG frames immediately (§4.6).
func (c *Client) Subscribe(cmd SubscribeCmd) (*Subscription, error) {
	sub := Subscribe{Sid: c.ids.nextSid(), Subject: cmd.Subject, Queue: cmd.Queue}
	sink := c.registry.insert(sub)
	c.currentSender().send(&Op{Kind: OpSub, Sub: &sub})
	return &Subscription{Cmd: sub, client: c, sink: sink}, nil
}

// Unsubscribe sends UNSUB for cmd.Sid. A nil MaxMsgs evicts the
// subscription immediately; a set MaxMsgs installs (or updates) the
// auto-unsubscribe threshold, which the Registry enforces as further
// messages are delivered (§4.6, §8 scenario 3).
func (c *Client) Unsubscribe(cmd UnsubscribeCmd) error {
	if cmd.MaxMsgs != nil {
		c.registry.setMax(cmd.Sid, *cmd.MaxMsgs)
	} else if sink, ok := c.registry.get(cmd.Sid); ok {
		c.registry.remove(cmd.Sid)
		sink.closeSink()
	}
	c.currentSender().send(&Op{Kind: OpUnsub, Unsub: &UnSubscribe{Sid: cmd.Sid, MaxMsgs: cmd.MaxMsgs}})
	return nil
}

// Request publishes payload to subject with an ephemeral inbox as
// reply-to, auto-unsubscribed after one message, and waits for the
// reply or ctx's cancellation (§4.6). The payload-size check runs
// before anything else, so an oversized request never puts SUB/UNSUB on
// the wire only to fail on the PUB that would have followed (§4.6, §7).
func (c *Client) Request(ctx context.Context, subject string, payload []byte) (*Message, error) {
	if limit, ok := c.maxPayload(); ok && int64(len(payload)) > limit {
		return nil, &MaxPayloadOverflowError{Limit: limit}
	}

	inbox := c.ids.newInbox()
	sub, err := c.Subscribe(SubscribeCmd{Subject: inbox})
	if err != nil {
		return nil, err
	}
	one := uint64(1)
	if err := c.Unsubscribe(UnsubscribeCmd{Sid: sub.Cmd.Sid, MaxMsgs: &one}); err != nil {
		return nil, err
	}
	if err := c.Publish(PublishCmd{Subject: subject, ReplyTo: inbox, Data: payload}); err != nil {
		_ = c.Unsubscribe(UnsubscribeCmd{Sid: sub.Cmd.Sid})
		return nil, err
	}
	msg, err := sub.NextMsg(ctx)
	if err != nil {
		_ = c.Unsubscribe(UnsubscribeCmd{Sid: sub.Cmd.Sid})
		// The inbox stream ending without a reply (CLOSE sentinel or
		// registry eviction with no terminal error) is a broken request
		// chain, not a connection-closed condition from the caller's
		// point of view (§4.6 "stream closes without a message").
		if err == ErrConnectionClosed {
			return nil, ErrInnerBrokenChain
		}
		return nil, err
	}
	return msg, nil
}

// Close tears the client down permanently: the background goroutines
// stop, every subscription sink is closed, and ClosedCB (if any) runs.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setStatus(StatusClosed)
		c.cancelClose()
		close(c.closeCh)
		c.conn.close()
		c.registry.closeAll()
		if c.opts.ClosedCB != nil {
			c.opts.ClosedCB(c)
		}
	})
}

// atomic helper retained for readability at call sites that only ever
// read pingOutstanding diagnostically (e.g. tests).
func (c *Client) outstandingPings() int64 {
	return atomic.LoadInt64(&c.pingOutstanding)
}
