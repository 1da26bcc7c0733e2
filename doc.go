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

// Package natscore implements the connected-client engine of a Go client
// for a publish/subscribe messaging broker speaking a line-oriented text
// protocol. It multiplexes one duplex byte stream into many logical
// subscriptions, keeps that stream alive through liveness probing and
// transparent reconnection across a cluster, and exposes publish,
// subscribe, unsubscribe and request/reply primitives whose semantics
// survive a reconnect.
//
// Frame parsing/serialization of the wire grammar, TCP/TLS dialing, DNS
// resolution, and any application surface beyond the primitives in this
// package are kept intentionally small or delegated, per design.
package natscore

const (
	// Version is the engine's own version, sent as part of CONNECT.
	Version = "0.1.0"

	// DefaultURL is used when no endpoint is supplied.
	DefaultURL = "nats://localhost:4222"

	// DefaultPort is assumed for any endpoint URL that omits one.
	DefaultPort = 4222

	clientLang = "go"
)
