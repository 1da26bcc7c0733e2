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
	"bytes"
	"testing"
)

func TestWriteReadPub(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	op := &Op{Kind: OpPub, Pub: &Publish{Subject: "foo.bar", ReplyTo: "reply.1", Data: []byte("hello")}}
	if err := writeOp(bw, op); err != nil {
		t.Fatalf("writeOp: %v", err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	br := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	// readOp only understands frames a server would send, not PUB; parse
	// the header line manually to check the wire form.
	line, err := readLine(br)
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	want := "PUB foo.bar reply.1 5"
	if line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestWriteReadSubNoQueue(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	op := &Op{Kind: OpSub, Sub: &Subscribe{Subject: "foo", Sid: "1"}}
	if err := writeOp(bw, op); err != nil {
		t.Fatalf("writeOp: %v", err)
	}
	bw.Flush()
	br := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	line, _ := readLine(br)
	if line != "SUB foo 1" {
		t.Fatalf("got %q", line)
	}
}

func TestWriteReadUnsubWithMax(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	max := uint64(2)
	op := &Op{Kind: OpUnsub, Unsub: &UnSubscribe{Sid: "1", MaxMsgs: &max}}
	writeOp(bw, op)
	bw.Flush()
	br := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	line, _ := readLine(br)
	if line != "UNSUB 1 2" {
		t.Fatalf("got %q", line)
	}
}

func TestReadInfoWithConnectURLsAndNonce(t *testing.T) {
	raw := `INFO {"server_id":"abc","host":"127.0.0.1","port":4222,"version":"1.0","max_payload":1048576,"connect_urls":["10.0.0.2:4222"],"nonce":"nonceval"}` + "\r\n"
	br := bufio.NewReader(bytes.NewReader([]byte(raw)))
	op, err := readOp(br)
	if err != nil {
		t.Fatalf("readOp: %v", err)
	}
	if op.Kind != OpInfo {
		t.Fatalf("got kind %v", op.Kind)
	}
	if op.Info.MaxPayload != 1048576 {
		t.Fatalf("max_payload = %d", op.Info.MaxPayload)
	}
	if len(op.Info.ConnectURLs) != 1 || op.Info.ConnectURLs[0] != "10.0.0.2:4222" {
		t.Fatalf("connect_urls = %v", op.Info.ConnectURLs)
	}
	if op.Info.Nonce != "nonceval" {
		t.Fatalf("nonce = %q", op.Info.Nonce)
	}
}

func TestReadMsgWithAndWithoutReply(t *testing.T) {
	raw := "MSG foo.bar 9 5\r\nhello\r\nMSG foo.bar 9 reply.1 5\r\nworld\r\n"
	br := bufio.NewReader(bytes.NewReader([]byte(raw)))

	op1, err := readOp(br)
	if err != nil {
		t.Fatalf("readOp 1: %v", err)
	}
	if op1.Msg.ReplyTo != "" || string(op1.Msg.Data) != "hello" {
		t.Fatalf("unexpected msg1: %+v", op1.Msg)
	}

	op2, err := readOp(br)
	if err != nil {
		t.Fatalf("readOp 2: %v", err)
	}
	if op2.Msg.ReplyTo != "reply.1" || string(op2.Msg.Data) != "world" {
		t.Fatalf("unexpected msg2: %+v", op2.Msg)
	}
}

func TestReadMsgMalformedLength(t *testing.T) {
	raw := "MSG foo.bar 9 notanumber\r\n"
	br := bufio.NewReader(bytes.NewReader([]byte(raw)))
	if _, err := readOp(br); err == nil {
		t.Fatal("expected error for malformed MSG length")
	}
}

func TestReadErrStripsQuotes(t *testing.T) {
	raw := "-ERR 'Authorization Violation'\r\n"
	br := bufio.NewReader(bytes.NewReader([]byte(raw)))
	op, err := readOp(br)
	if err != nil {
		t.Fatalf("readOp: %v", err)
	}
	if op.Kind != OpErr || op.ErrText != "Authorization Violation" {
		t.Fatalf("got %+v", op)
	}
}

func TestReadSkipsOKAndBlankLines(t *testing.T) {
	raw := "\r\n+OK\r\nPING\r\n"
	br := bufio.NewReader(bytes.NewReader([]byte(raw)))
	op, err := readOp(br)
	if err != nil {
		t.Fatalf("readOp: %v", err)
	}
	if op.Kind != OpPing {
		t.Fatalf("got %v", op.Kind)
	}
}
