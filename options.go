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
	"crypto/tls"
	"time"

	"go.uber.org/zap"
)

// Status is the client-level connection state (§3). It is distinct from
// Connection's (phase, version) because the client additionally enforces
// handshake completion (INFO received, CONNECT sent) before becoming
// Connected.
type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
	StatusDisconnected
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusReconnecting:
		return "RECONNECTING"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const (
	defaultPingInterval    = 2 * time.Minute
	defaultPingMaxOut      = 2
	defaultReconnectWaitMs = 2000
)

// ConnHandler is a callback that receives the client. Handlers added with
// AddReconnectHandler run after every successful reconnection, as soon as
// the new transport is bound; they do not wait for the new INFO/CONNECT
// handshake. Options.ReconnectedCB runs once that handshake completes.
type ConnHandler func(*Client)

// ErrHandler processes asynchronous errors encountered on a subscription.
type ErrHandler func(*Client, *Subscription, error)

// Option configures Options via the functional-options pattern (§10.3),
// layered on top of the teacher's plain-struct style.
type Option func(*Options) error

// Options configures a Client. The zero-value-friendly struct form
// (Options{...}.Connect()) and the functional-option form
// (Connect(urls, WithX(...))) are both supported.
type Options struct {
	// ClusterURIs is the initial endpoint list (§6); non-empty.
	ClusterURIs []string

	TLSRequired bool
	TLSConfig   *tls.Config

	Verbose  bool
	Pedantic bool
	Echo     bool

	AuthToken string
	Username  string
	Password  string
	Name      string

	UserJWT *UserJWT

	PingInterval time.Duration
	PingMaxOut   int

	ReconnectTimeout time.Duration

	// EnsureConnect controls whether the initial Connect retries
	// indefinitely (true) or fails fast with ErrNoRouteToHost (false).
	EnsureConnect bool

	// SubscribeOnReconnect controls §4.7 step 6: replay subscriptions
	// (true) vs close every sink on reconnect (false).
	SubscribeOnReconnect bool

	DialTimeout time.Duration

	ClosedCB       ConnHandler
	DisconnectedCB ConnHandler
	ReconnectedCB  ConnHandler
	AsyncErrorCB   ErrHandler

	Logger *zap.Logger

	dialer dialer // test seam; nil means dialTCP
}

// DefaultOptions mirrors the teacher's package-level convenience value.
var DefaultOptions = Options{
	PingInterval:         defaultPingInterval,
	PingMaxOut:           defaultPingMaxOut,
	ReconnectTimeout:     defaultReconnectWaitMs * time.Millisecond,
	EnsureConnect:        false,
	SubscribeOnReconnect: true,
	DialTimeout:          2 * time.Second,
}

// Connect attempts to connect with urls as the initial cluster endpoint
// list and default options overridden by opts.
func Connect(urls []string, opts ...Option) (*Client, error) {
	o := DefaultOptions
	o.ClusterURIs = urls
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}
	return o.Connect()
}

// Connect attempts to connect to a NATS-protocol server with these
// options, mirroring the teacher's `Options.Connect()` method form.
func (o Options) Connect() (*Client, error) {
	if len(o.ClusterURIs) == 0 {
		return nil, ErrNoServers
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.dialer == nil {
		o.dialer = dialTCP
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultOptions.DialTimeout
	}
	return newClient(o)
}

// --- functional options ---

func WithTLS(cfg *tls.Config) Option {
	return func(o *Options) error { o.TLSRequired = true; o.TLSConfig = cfg; return nil }
}

func WithVerbose(v bool) Option {
	return func(o *Options) error { o.Verbose = v; return nil }
}

func WithPedantic(v bool) Option {
	return func(o *Options) error { o.Pedantic = v; return nil }
}

func WithEcho(v bool) Option {
	return func(o *Options) error { o.Echo = v; return nil }
}

func WithAuthToken(token string) Option {
	return func(o *Options) error { o.AuthToken = token; return nil }
}

func WithUserInfo(user, pass string) Option {
	return func(o *Options) error { o.Username = user; o.Password = pass; return nil }
}

func WithName(name string) Option {
	return func(o *Options) error { o.Name = name; return nil }
}

func WithUserJWT(jwt string, signer Signer) Option {
	return func(o *Options) error { o.UserJWT = &UserJWT{JWT: jwt, Signer: signer}; return nil }
}

func WithPingInterval(d time.Duration) Option {
	return func(o *Options) error { o.PingInterval = d; return nil }
}

func WithPingMaxOut(n int) Option {
	return func(o *Options) error { o.PingMaxOut = n; return nil }
}

func WithReconnectTimeout(d time.Duration) Option {
	return func(o *Options) error { o.ReconnectTimeout = d; return nil }
}

func WithEnsureConnect(v bool) Option {
	return func(o *Options) error { o.EnsureConnect = v; return nil }
}

func WithSubscribeOnReconnect(v bool) Option {
	return func(o *Options) error { o.SubscribeOnReconnect = v; return nil }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) error { o.Logger = l; return nil }
}

func WithClosedCB(cb ConnHandler) Option {
	return func(o *Options) error { o.ClosedCB = cb; return nil }
}

func WithDisconnectedCB(cb ConnHandler) Option {
	return func(o *Options) error { o.DisconnectedCB = cb; return nil }
}

func WithReconnectedCB(cb ConnHandler) Option {
	return func(o *Options) error { o.ReconnectedCB = cb; return nil }
}

func WithAsyncErrorCB(cb ErrHandler) Option {
	return func(o *Options) error { o.AsyncErrorCB = cb; return nil }
}

// withDialer is unexported: only tests substitute the dialer.
func withDialer(d dialer) Option {
	return func(o *Options) error { o.dialer = d; return nil }
}
