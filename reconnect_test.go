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
	"net"
	"testing"

	"go.uber.org/zap"
)

// TestTryBeginReconnectAtMostOneInFlight reproduces invariant 4: once a
// worker has moved the connection into Reconnecting, every concurrent
// caller observes false until that attempt resolves.
func TestTryBeginReconnectAtMostOneInFlight(t *testing.T) {
	conn := newConnection(zap.NewNop(), nil)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	conn.bind(a, "nats://127.0.0.1:4222")

	if !conn.tryBeginReconnect() {
		t.Fatal("first caller should win the reconnect")
	}
	if conn.tryBeginReconnect() {
		t.Fatal("second concurrent caller must not also win")
	}

	// Once the attempt resolves (rebind), a fresh reconnect can begin.
	c, d := net.Pipe()
	defer c.Close()
	defer d.Close()
	conn.rebind(c, "nats://127.0.0.1:4222")
	if !conn.tryBeginReconnect() {
		t.Fatal("after rebind, a new reconnect attempt should be grantable")
	}
}

// TestTryBeginReconnectNoOpWhenAlreadyConnected covers the "already
// reconnected by the time this caller decided" branch: once the phase is
// Connected (e.g. another worker's reconnect already completed), a late
// caller's trigger is a no-op.
func TestTryBeginReconnectNoOpWhenAlreadyConnected(t *testing.T) {
	conn := newConnection(zap.NewNop(), nil)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	conn.bind(a, "nats://127.0.0.1:4222")

	if conn.tryBeginReconnect() == false {
		t.Fatal("expected to win from the initial Connected phase")
	}
	conn.setPhase(phaseConnected) // simulate another worker's reconnect finishing first
	if conn.tryBeginReconnect() {
		t.Fatal("expected no-op once phase is already Connected")
	}
}

func TestRebindIncrementsVersionMonotonically(t *testing.T) {
	conn := newConnection(zap.NewNop(), nil)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	conn.bind(a, "nats://127.0.0.1:4222")

	_, v0 := conn.snapshot()
	if v0 != 0 {
		t.Fatalf("expected initial version 0, got %d", v0)
	}

	c, d := net.Pipe()
	defer c.Close()
	defer d.Close()
	v1 := conn.rebind(c, "nats://127.0.0.1:4223")
	if v1 <= v0 {
		t.Fatalf("expected version to increase, got %d after %d", v1, v0)
	}

	e, f := net.Pipe()
	defer e.Close()
	defer f.Close()
	v2 := conn.rebind(e, "nats://127.0.0.1:4224")
	if v2 <= v1 {
		t.Fatalf("expected version to keep increasing, got %d after %d", v2, v1)
	}
}
