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

	"go.uber.org/zap"
)

// controlChanLen bounds the channel the Demultiplexer forwards non-MSG
// frames through to the Control Loop.
const controlChanLen = 256

// demultiplexer consumes inbound frames from one connection generation
// and routes MSG frames to the matching subscription sink under a read
// lock on the Registry, forwarding everything else to the Control Loop's
// mailbox (§4.2). It never blocks on a full or abandoned consumer.
type demultiplexer struct {
	registry  *Registry
	controlCh chan *Op
	log       *zap.Logger
}

func newDemultiplexer(registry *Registry, log *zap.Logger) *demultiplexer {
	return &demultiplexer{
		registry:  registry,
		controlCh: make(chan *Op, controlChanLen),
		log:       log,
	}
}

// run reads frames from br until an error occurs. conn/atVersion let it
// tell an expected disconnect (triggered by a reconnect already in
// progress, or an intentional close) from one that should itself trigger
// reconnection.
func (d *demultiplexer) run(conn *Connection, br *bufio.Reader, atVersion uint64) {
	defer close(d.controlCh)
	for {
		op, err := readFrame(br)
		if err != nil {
			d.onReadErr(conn, atVersion, err)
			return
		}
		d.route(op)
	}
}

func (d *demultiplexer) route(op *Op) {
	if op.Kind == OpMsg {
		d.registry.deliver(op.Msg.Sid, op.Msg)
		return
	}
	select {
	case d.controlCh <- op:
	default:
		if d.log != nil {
			d.log.Warn("control channel full, dropping frame", zap.String("kind", op.Kind.String()))
		}
	}
}

func (d *demultiplexer) onReadErr(conn *Connection, atVersion uint64, err error) {
	phase, version := conn.snapshot()
	if phase == phaseClosed {
		return
	}
	if version != atVersion {
		// A newer generation is already live; this read loop belongs to a
		// connection that is being torn down on purpose. Nothing to do.
		if d.log != nil {
			d.log.Debug("stale read loop exiting", zap.Uint64("loop_version", atVersion), zap.Uint64("current_version", version))
		}
		return
	}
	if d.log != nil {
		d.log.Debug("read loop observed transport error, triggering reconnect", zap.Error(err))
	}
	conn.mu.Lock()
	trigger := conn.reconnectTrigger
	conn.mu.Unlock()
	if trigger != nil {
		trigger()
	}
}
