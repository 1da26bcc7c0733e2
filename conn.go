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
	"bufio"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// connPhase is the (phase, version) pair of §3's Connection state.
// version only ever increases, and only on a successful (re)connect; it
// is how the Reconnect Orchestrator tells a stale attempt from a live one.
type connPhase int32

const (
	phaseConnecting connPhase = iota
	phaseConnected
	phaseReconnecting
	phaseDisconnected
	phaseClosed
)

const defaultBufSize = 32 * 1024

// Connection owns one duplex frame transport. It tracks liveness-relevant
// state and exposes frame sink ("not ready" gated) and frame stream
// (read-loop snapshot) views (§4.1). The reconnect trigger is an
// arbitrary callable supplied at construction so tests can inject one.
type Connection struct {
	mu sync.Mutex

	url string
	tr  transport
	br  *bufio.Reader
	bw  *bufio.Writer

	phase   connPhase
	version uint64

	// ready is false from bind/rebind until the Control Loop has sent
	// CONNECT for the current generation. trySend lets CONNECT itself
	// through while ready is false, but gates every other frame on it,
	// so replayed SUBs and any user Publish/Subscribe issued before the
	// handshake completes can never precede CONNECT on the wire
	// (invariant 5, §8 scenario 4).
	ready bool

	reconnectTrigger func()
	log              *zap.Logger
}

func newConnection(log *zap.Logger, reconnectTrigger func()) *Connection {
	return &Connection{
		phase:            phaseDisconnected,
		reconnectTrigger: reconnectTrigger,
		log:              log,
	}
}

// bind installs the first transport after the initial dial. version
// starts at 0, matching the original's
// `(NatsConnectionState::Connected, 0)`.
func (c *Connection) bind(tr transport, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tr = tr
	c.url = url
	c.br = bufio.NewReaderSize(tr, defaultBufSize)
	c.bw = bufio.NewWriterSize(tr, defaultBufSize)
	// phase tracks transport-level liveness, distinct from the client's
	// handshake-aware Status (§3): frames (notably the handshake's own
	// CONNECT) must be sendable immediately, before INFO/CONNECT completes.
	c.phase = phaseConnected
	c.version = 0
	c.ready = false
}

// rebind installs a transport obtained by a successful reconnect,
// incrementing version and marking the connection Connected. ready is
// reset, so every frame other than CONNECT is gated again until the
// Control Loop has sent CONNECT for this generation (see trySend).
func (c *Connection) rebind(tr transport, url string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tr = tr
	c.url = url
	c.br = bufio.NewReaderSize(tr, defaultBufSize)
	c.bw = bufio.NewWriterSize(tr, defaultBufSize)
	c.phase = phaseConnected
	c.version++
	c.ready = false
	return c.version
}

// snapshotReader returns the current reader and the version it belongs
// to, for a demultiplexer read loop to capture at spin-up time.
func (c *Connection) snapshotReader() (*bufio.Reader, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.br, c.version
}

func (c *Connection) setPhase(p connPhase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Connection) snapshot() (connPhase, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase, c.version
}

// markReady records that CONNECT has been sent for the current
// generation, opening the gate for every other frame kind.
func (c *Connection) markReady() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

// trySend is the frame sink view (§4.1): if not Connected, frames are
// silently not sent (no drop-visible error; the caller just never gets a
// CONNECT-before-INFO race). CONNECT itself is let through once the
// transport is Connected, since sending it is what makes the generation
// ready; every other frame kind additionally waits for ready, so a
// replayed SUB or a user Publish/Subscribe issued before the handshake
// completes can never reach the wire ahead of CONNECT (invariant 5). If
// the transport reports disconnection, the reconnect trigger fires and
// the failure is swallowed, never surfaced.
func (c *Connection) trySend(op *Op) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != phaseConnected {
		return false
	}
	if op.Kind != OpConnect && !c.ready {
		return false
	}
	if err := writeOp(c.bw, op); err != nil {
		c.handleTransportErrLocked(err)
		return false
	}
	return true
}

// flush forces buffered writes out, same gating as trySend.
func (c *Connection) flush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != phaseConnected || c.bw == nil {
		return false
	}
	if err := c.bw.Flush(); err != nil {
		c.handleTransportErrLocked(err)
		return false
	}
	return true
}

// handleTransportErrLocked must be called with mu held. A disconnected
// transport never becomes a caller-visible error (§4.1, §7); it only
// triggers reconnection.
func (c *Connection) handleTransportErrLocked(err error) {
	if errors.Is(err, io.EOF) || isNetClosedOrBroken(err) {
		if c.log != nil {
			c.log.Debug("transport disconnected", zap.Error(err))
		}
		if c.reconnectTrigger != nil {
			go c.reconnectTrigger()
		}
	}
}

func isNetClosedOrBroken(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, errServerDisconnected)
}

// readFrame is the frame stream view for a demultiplexer read loop. br
// and its version (atVersion) are captured once at spin-up via
// snapshotReader; the
// caller decides whether an error on a stale generation is expected.
func readFrame(br *bufio.Reader) (*Op, error) {
	return readOp(br)
}

// close marks the connection permanently closed and releases the socket.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phaseClosed
	if c.tr != nil {
		c.tr.Close()
	}
}

// closeCurrentTransport closes the live transport without marking the
// connection permanently closed, so a reader goroutine blocked on it
// (e.g. after a ping-timeout-triggered reconnect, where no read error
// has occurred yet) unblocks and exits. The resulting read error lands
// on a demultiplexer already reading a stale generation; onReadErr's
// phase/version check makes that a harmless no-op.
func (c *Connection) closeCurrentTransport() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr != nil {
		c.tr.Close()
	}
}

func (c *Connection) endpointURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}
