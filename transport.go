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
	"context"
	"crypto/tls"
	"net"
	"time"
)

// transport is the duplex byte stream the engine multiplexes. Frame
// parsing/serialization, TCP/TLS dialing and DNS resolution are all
// external collaborators per spec §1; transport is the seam where a test
// can substitute an in-memory pipe for a real socket.
type transport interface {
	net.Conn
}

// dialer builds a transport for one candidate endpoint. The default
// implementation opens a TCP connection and optionally upgrades it to
// TLS; tests substitute a fake dialer.
type dialer func(ctx context.Context, addr string, tlsConf *tls.Config) (transport, error)

// dialTCP is the default dialer: plain TCP, optionally TLS-upgraded.
func dialTCP(ctx context.Context, addr string, tlsConf *tls.Config) (transport, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsConf != nil {
		tconn := tls.Client(conn, tlsConf)
		if deadline, ok := ctx.Deadline(); ok {
			_ = tconn.SetDeadline(deadline)
		}
		if err := tconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		_ = tconn.SetDeadline(time.Time{})
		return tconn, nil
	}
	return conn, nil
}
