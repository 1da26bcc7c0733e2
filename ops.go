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

// OpKind tags the wire vocabulary an Op carries. Go has no sum types, so
// Op is a tagged union emulated with a Kind discriminant plus the one
// payload field that Kind says is valid.
type OpKind uint8

const (
	OpConnect OpKind = iota
	OpInfo
	OpMsg
	OpPub
	OpSub
	OpUnsub
	OpPing
	OpPong
	OpErr
	// OpClose is a local sentinel. It is never put on the wire; the
	// Control Loop exits when it receives one. Subscription sinks use
	// their own closed frame instead (see SubscriptionSink.closeSink).
	OpClose
)

func (k OpKind) String() string {
	switch k {
	case OpConnect:
		return "CONNECT"
	case OpInfo:
		return "INFO"
	case OpMsg:
		return "MSG"
	case OpPub:
		return "PUB"
	case OpSub:
		return "SUB"
	case OpUnsub:
		return "UNSUB"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	case OpErr:
		return "-ERR"
	case OpClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Op is one protocol frame, either read off the wire or about to be
// written to it, or the local CLOSE sentinel.
type Op struct {
	Kind    OpKind
	Connect *ConnectInfo
	Info    *ServerInfo
	Msg     *Message
	Pub     *Publish
	Sub     *Subscribe
	Unsub   *UnSubscribe
	ErrText string
}

// Message is a single delivered MSG frame.
type Message struct {
	Subject string
	Sid     string
	ReplyTo string
	Data    []byte
}

// Publish is the payload of a client PUB frame.
type Publish struct {
	Subject string
	ReplyTo string
	Data    []byte
}

// Subscribe is the payload of a client SUB frame. Sid must be unique for
// the lifetime of the subscription.
type Subscribe struct {
	Subject string
	Sid     string
	Queue   string
}

// UnSubscribe is the payload of a client UNSUB frame. MaxMsgs is nil when
// the caller wants immediate unsubscribe.
type UnSubscribe struct {
	Sid     string
	MaxMsgs *uint64
}

// ServerInfo is the server's advertised configuration, received as the
// first frame on every (re)connect and on cluster topology changes.
type ServerInfo struct {
	ServerID     string   `json:"server_id"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Version      string   `json:"version"`
	AuthRequired bool     `json:"auth_required,omitempty"`
	TLSRequired  bool     `json:"tls_required,omitempty"`
	MaxPayload   int64    `json:"max_payload"`
	ConnectURLs  []string `json:"connect_urls,omitempty"`
	Nonce        string   `json:"nonce,omitempty"`
}

// ConnectInfo is the CONNECT handshake payload, sent in response to every
// INFO frame. Fields are omitted from the wire when empty, per
// §4.4/§6.
type ConnectInfo struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	TLSRequired  bool   `json:"tls_required"`
	AuthToken    string `json:"auth_token,omitempty"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	Name         string `json:"name,omitempty"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo"`
	Sig          string `json:"sig,omitempty"`
	JWT          string `json:"jwt,omitempty"`
}
