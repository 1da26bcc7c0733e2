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
	"context"
	"crypto/tls"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const fakeInfo = `INFO {"server_id":"x","host":"127.0.0.1","port":4222,"version":"2.0","max_payload":1048576}` + "\r\n"

// newFakePair builds a dialer that always hands back one end of an
// in-memory net.Pipe, and returns the other end for the test to drive as
// a fake server.
func newFakePair() (dialer, net.Conn) {
	clientSide, serverSide := net.Pipe()
	d := func(ctx context.Context, addr string, tlsConf *tls.Config) (transport, error) {
		return clientSide, nil
	}
	return d, serverSide
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if c.Status() == StatusConnected {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for client to reach StatusConnected")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandshakeSendsConnectAfterInfo(t *testing.T) {
	d, server := newFakePair()
	defer server.Close()

	serverBR := bufio.NewReader(server)
	connectLine := make(chan string, 1)
	go func() {
		server.Write([]byte(fakeInfo))
		line, err := serverBR.ReadString('\n')
		if err != nil {
			return
		}
		connectLine <- strings.TrimRight(line, "\r\n")
	}()

	c, err := Connect([]string{"127.0.0.1:4222"}, withDialer(d), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	select {
	case line := <-connectLine:
		if !strings.HasPrefix(line, "CONNECT ") {
			t.Fatalf("expected CONNECT frame, got %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for CONNECT")
	}
}

func TestPublishRejectsOversizedPayload(t *testing.T) {
	d, server := newFakePair()
	defer server.Close()

	go func() {
		server.Write([]byte(fakeInfo))
		br := bufio.NewReader(server)
		br.ReadString('\n') // drain CONNECT
	}()

	c, err := Connect([]string{"127.0.0.1:4222"}, withDialer(d), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	waitConnected(t, c)

	oversized := make([]byte, 1048576+1)
	err = c.Publish(PublishCmd{Subject: "foo", Data: oversized})
	if err == nil {
		t.Fatal("expected MaxPayloadOverflowError")
	}
	overflow, ok := AsMaxPayloadOverflow(err)
	if !ok || overflow.Limit != 1048576 {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubscribeReceivesDeliveredMessage(t *testing.T) {
	d, server := newFakePair()
	defer server.Close()

	subLine := make(chan string, 1)
	go func() {
		server.Write([]byte(fakeInfo))
		br := bufio.NewReader(server)
		br.ReadString('\n') // CONNECT

		line, err := br.ReadString('\n') // SUB foo.bar <sid>
		if err != nil {
			return
		}
		trimmed := strings.TrimRight(line, "\r\n")
		subLine <- trimmed
		fields := strings.Fields(trimmed)
		sid := fields[len(fields)-1]

		server.Write([]byte("MSG foo.bar " + sid + " 5\r\nhello\r\n"))
	}()

	c, err := Connect([]string{"127.0.0.1:4222"}, withDialer(d), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	waitConnected(t, c)

	sub, err := c.Subscribe(SubscribeCmd{Subject: "foo.bar"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case line := <-subLine:
		if !strings.HasPrefix(line, "SUB foo.bar ") {
			t.Fatalf("expected SUB frame, got %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SUB")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := sub.NextMsg(ctx)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	if string(msg.Data) != "hello" {
		t.Fatalf("got %q", msg.Data)
	}
}

func TestRequestReplyRoundTrip(t *testing.T) {
	d, server := newFakePair()
	defer server.Close()

	go func() {
		server.Write([]byte(fakeInfo))
		br := bufio.NewReader(server)
		br.ReadString('\n') // CONNECT

		subLine, err := br.ReadString('\n') // SUB <inbox> <sid>
		if err != nil {
			return
		}
		subFields := strings.Fields(strings.TrimRight(subLine, "\r\n"))
		if len(subFields) != 3 {
			return
		}
		sid := subFields[2]

		br.ReadString('\n') // UNSUB <sid> 1

		// PUB <subject> <inbox> <len>\r\n<payload>\r\n
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimRight(line, "\r\n"))
		if len(fields) != 4 {
			return
		}
		inbox := fields[2]
		buf := make([]byte, 4)
		br.Read(buf) // "ping"
		br.ReadString('\n')

		reply := "MSG " + inbox + " " + sid + " 4\r\npong\r\n"
		server.Write([]byte(reply))
	}()

	c, err := Connect([]string{"127.0.0.1:4222"}, withDialer(d), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	waitConnected(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := c.Request(ctx, "svc.echo", []byte("ping"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(msg.Data) != "pong" {
		t.Fatalf("got %q", msg.Data)
	}
}
