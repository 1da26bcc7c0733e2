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
	"errors"
	"fmt"
)

// Sentinel errors with no associated data, mirroring the teacher's flat
// errors.New set.
var (
	// ErrConnectionClosed is returned by Subscription.NextMsg once the
	// subscription's stream has been closed (client Close, Unsubscribe
	// without a max, or a reconnect without subscription replay).
	ErrConnectionClosed = errors.New("natscore: connection closed")

	// ErrBadSubscription is returned when an operation targets a Subscription
	// that has already been unsubscribed or invalidated.
	ErrBadSubscription = errors.New("natscore: invalid subscription")

	// ErrNoRouteToHost is returned when every candidate endpoint has been
	// tried and none could be dialed, and ensure_connect is false.
	ErrNoRouteToHost = errors.New("natscore: no route to host")

	// ErrInnerBrokenChain is returned when a composed operation (request/reply)
	// terminates without producing a value, e.g. the inbox stream closed
	// before a reply arrived.
	ErrInnerBrokenChain = errors.New("natscore: inner broken chain")

	// ErrNoServers is returned when Options.ClusterURIs is empty.
	ErrNoServers = errors.New("natscore: no servers configured")

	// errServerDisconnected is internal: it signals the read/write path that
	// the transport reported EOF. It triggers a reconnect and must never be
	// surfaced to a caller (per spec §4.1 and §7).
	errServerDisconnected = errors.New("natscore: server disconnected (internal)")
)

// MaxPayloadOverflowError is returned when a publish or request payload
// exceeds the server-advertised max_payload. It carries the limit so
// callers can react to it programmatically, unlike the teacher's flat
// sentinel errors.
type MaxPayloadOverflowError struct {
	Limit int64
}

func (e *MaxPayloadOverflowError) Error() string {
	return fmt.Sprintf("natscore: payload exceeds max_payload of %d bytes", e.Limit)
}

// SubscriptionReachedMaxMsgsError is the terminal element of a
// subscription's message sequence once delivered_count reaches max_count.
type SubscriptionReachedMaxMsgsError struct {
	Max uint64
}

func (e *SubscriptionReachedMaxMsgsError) Error() string {
	return fmt.Sprintf("natscore: subscription reached max messages (%d)", e.Max)
}

// AsMaxPayloadOverflow reports whether err is a *MaxPayloadOverflowError.
func AsMaxPayloadOverflow(err error) (*MaxPayloadOverflowError, bool) {
	var e *MaxPayloadOverflowError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsSubscriptionReachedMaxMsgs reports whether err is a
// *SubscriptionReachedMaxMsgsError.
func AsSubscriptionReachedMaxMsgs(err error) (*SubscriptionReachedMaxMsgsError, bool) {
	var e *SubscriptionReachedMaxMsgsError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
