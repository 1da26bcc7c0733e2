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
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// tryBeginReconnect implements §4.7 steps 1-2 under a single mutex,
// which collapses the spec's read-then-CAS dance (written for a
// lock-free state tuple) into one atomic decision: if another worker
// already owns the reconnect, or the connection is already live, this
// is a no-op (invariant 4: at most one in-flight reconnect).
func (c *Connection) tryBeginReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseReconnecting || c.phase == phaseConnected {
		return false
	}
	c.phase = phaseReconnecting
	return true
}

// dialResult is the outcome of one successful dial attempt.
type dialResult struct {
	tr  transport
	url string
}

// triggerReconnect is the Connection-supplied reconnect trigger. It is
// safe to call from multiple goroutines (read loop, liveness pinger,
// explicit caller); only the first to observe a reconnectable phase
// proceeds.
func (c *Client) triggerReconnect() {
	if c.closed() {
		return
	}
	if !c.conn.tryBeginReconnect() {
		return
	}
	c.conn.closeCurrentTransport()
	go c.runReconnectLoop()
}

// runReconnectLoop walks candidate endpoints, dials, and on success
// rebuilds the client's bindings; on exhaustion it waits
// ReconnectTimeout and re-enters step 1 (§4.7 step 4). The per-sweep
// wait is expressed through cenkalti/backoff's constant policy rather
// than a bare time.Sleep, giving the wait a context cancellation path
// for free when the client is closed.
func (c *Client) runReconnectLoop() {
	ctx := c.closeCtx()
	policy := backoff.NewConstantBackOff(c.reconnectTimeout())

	op := func() (dialResult, error) {
		tr, url, err := c.dialOnce(ctx)
		if err != nil {
			c.conn.setPhase(phaseDisconnected)
			return dialResult{}, err
		}
		return dialResult{tr: tr, url: url}, nil
	}

	res, err := backoff.Retry(ctx, op, backoff.WithBackOff(policy), backoff.WithMaxTries(0), backoff.WithMaxElapsedTime(0))
	if err != nil {
		// Context was cancelled (client closed); nothing further to do.
		return
	}

	version := c.conn.rebind(res.tr, res.url)
	c.onReconnected(version)
}

// onReconnected performs the client-level handler for the reconnect
// signal (§4.7's second half): transition to Reconnecting, optionally
// close every sink, rebuild Sender/Demultiplexer/control channel (the
// new Control Loop redoes the handshake when the server's INFO arrives),
// and invoke every registered reconnect handler. The handlers are called
// right after the rebuild, without waiting for that handshake.
func (c *Client) onReconnected(version uint64) {
	c.setStatus(StatusReconnecting)
	c.log.Info("reconnected", zap.String("url", c.conn.endpointURL()), zap.Uint64("version", version))

	if !c.opts.SubscribeOnReconnect {
		c.registry.closeAll()
	}

	atomic.StoreInt64(&c.pingOutstanding, 0)

	// rebuildBindings starts the new generation's Control Loop, which
	// drives the handshake off the server's first INFO frame and, once
	// CONNECT has actually gone out, replays retained subscriptions
	// itself (see handleInfo) — so nothing here can race ahead of it.
	c.rebuildBindings(version)

	c.invokeReconnectHandlers()
}

// rebuildBindings spins up a fresh demultiplexer bound to the new
// transport and a fresh Sender, then starts the Control Loop reading
// from the demultiplexer's control channel. The previous generation's
// demultiplexer (and therefore its Control Loop) has already exited or
// is about to: triggerReconnect closed the transport its captured reader
// reads from, so its next read attempt fails and closes its own control
// channel, ending that Control Loop goroutine (§4.7). The handshake itself
// (INFO → CONNECT) runs inline as part of the new Control Loop
// processing the server's first frame, per §9's "Open question"
// resolution: no re-entry into the outer connect routine.
func (c *Client) rebuildBindings(version uint64) *sender {
	br, atVersion := c.conn.snapshotReader()

	dmx := newDemultiplexer(c.registry, c.log)
	snd := newSender(c.conn)

	c.setSender(snd)

	go dmx.run(c.conn, br, atVersion)
	go c.runControlLoop(dmx.controlCh, snd)

	return snd
}

// replaySubscriptions re-sends SUB for every retained registry entry.
// Failure to replay one is logged and others continue; the registry
// entry is preserved either way (§4.7 step 6).
func (c *Client) replaySubscriptions(snd *sender) {
	for _, cmd := range c.registry.sids() {
		if !snd.send(&Op{Kind: OpSub, Sub: &cmd}) {
			c.log.Error("failed to replay subscription", zap.String("sid", cmd.Sid), zap.String("subject", cmd.Subject))
		}
	}
}

// invokeReconnectHandlers calls every registered handler with a handle
// to the client. Handlers must not block the reconnect path (§9); they
// run synchronously here, same as the original's per-handler loop, so a
// slow handler is the caller's problem, not an excuse to fork yet more
// goroutines per handler.
func (c *Client) invokeReconnectHandlers() {
	c.reconnectHandlersMu.Lock()
	handlers := make([]ConnHandler, 0, len(c.reconnectHandlers))
	for _, h := range c.reconnectHandlers {
		handlers = append(handlers, h)
	}
	c.reconnectHandlersMu.Unlock()

	for _, h := range handlers {
		h(c)
	}
}

// dialOnce walks the current candidate endpoint list in order, per
// §4.7 step 3/4.
func (c *Client) dialOnce(ctx context.Context) (transport, string, error) {
	candidates := resolveCandidates(c.endpointsSnapshot())
	if len(candidates) == 0 {
		return nil, "", ErrNoRouteToHost
	}
	var lastErr error
	for _, cand := range candidates {
		dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		tr, err := c.opts.dialer(dctx, cand.hostPort, c.tlsConfigFor(cand))
		cancel()
		if err == nil {
			return tr, cand.url.String(), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, "", ErrNoRouteToHost
	}
	return nil, "", fmt.Errorf("%w: %w", ErrNoRouteToHost, lastErr)
}
