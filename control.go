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
	"sync/atomic"

	"go.uber.org/zap"
)

// runControlLoop consumes frames from the demultiplexer's control
// channel and dispatches them per §4.4's table. It exits on OpClose or
// when ch is closed; across a reconnect boundary the previous
// generation's loop ends the second way, when its demultiplexer's read
// fails and closes ch.
func (c *Client) runControlLoop(ch <-chan *Op, snd *sender) {
	for op := range ch {
		switch op.Kind {
		case OpPing:
			atomic.StoreInt64(&c.pingOutstanding, 0)
			snd.send(&Op{Kind: OpPong})
		case OpPong:
			atomic.StoreInt64(&c.pingOutstanding, 0)
		case OpInfo:
			atomic.StoreInt64(&c.pingOutstanding, 0)
			c.handleInfo(op.Info, snd)
		case OpErr:
			c.log.Error("server reported error", zap.String("text", op.ErrText))
		case OpClose:
			return
		default:
			c.forwardOOB(op)
			atomic.StoreInt64(&c.pingOutstanding, 0)
		}
	}
}

// handleInfo stores server_info, grows the endpoint list with
// connect_urls, builds and sends CONNECT, and only then opens the gate
// for every other frame kind: subscription replay and any user
// Publish/Subscribe issued earlier in this generation are held behind
// Connection.ready until CONNECT has actually gone out, so nothing can
// precede it on the wire (invariant 5, §8 scenario 4).
func (c *Client) handleInfo(info *ServerInfo, snd *sender) {
	c.serverInfoMu.Lock()
	c.serverInfo = info
	c.serverInfoMu.Unlock()

	c.mergeEndpoints(info.ConnectURLs)

	connect := c.buildConnectInfo(info)
	snd.send(&Op{Kind: OpConnect, Connect: connect})
	c.conn.markReady()
	c.setStatus(StatusConnected)
	c.replaySubscriptions(snd)
}

// buildConnectInfo constructs the CONNECT payload per §4.4/§6: empty
// strings are coerced to absent fields via ConnectInfo's omitempty tags;
// credentials embedded in the endpoint URL override configured
// user/pass; a configured JWT signer is invoked against the server nonce,
// and on failure the handshake proceeds without jwt/sig.
func (c *Client) buildConnectInfo(info *ServerInfo) *ConnectInfo {
	o := c.opts
	ci := &ConnectInfo{
		Verbose:     o.Verbose,
		Pedantic:    o.Pedantic,
		TLSRequired: o.TLSRequired,
		AuthToken:   o.AuthToken,
		User:        o.Username,
		Pass:        o.Password,
		Name:        o.Name,
		Lang:        clientLang,
		Version:     Version,
		Protocol:    1,
		Echo:        o.Echo,
	}

	if user, pass, ok := credentialsFromURL(c.conn.endpointURL()); ok {
		ci.User = user
		ci.Pass = pass
	}

	if o.UserJWT != nil {
		ci.JWT = o.UserJWT.JWT
		sig, err := signNonce(o.UserJWT.Signer, info.Nonce)
		if err != nil {
			c.log.Error("nonce signing callback failed, proceeding without jwt/sig", zap.Error(err))
			ci.JWT = ""
		} else {
			ci.Sig = sig
		}
	}
	return ci
}

// mergeEndpoints updates the candidate endpoint list to initial ∪
// connect_urls, per §3/§4.4.
func (c *Client) mergeEndpoints(connectURLs []string) {
	c.endpointsMu.Lock()
	defer c.endpointsMu.Unlock()
	seen := make(map[string]struct{}, len(c.endpoints))
	for _, e := range c.endpoints {
		seen[e] = struct{}{}
	}
	for _, u := range connectURLs {
		if _, ok := seen[u]; !ok {
			c.endpoints = append(c.endpoints, u)
			seen[u] = struct{}{}
		}
	}
}

// forwardOOB forwards an otherwise-undispatched frame to the
// out-of-band hook mentioned in §4.4's dispatch table ("other: forward
// to the out-of-band unsubscribe channel (implementation-defined
// hook)"). Nothing in this engine currently consumes it beyond logging;
// it exists so a future extension (e.g. additional unsubscribe
// bookkeeping) has somewhere to plug in without changing the control
// loop's dispatch.
func (c *Client) forwardOOB(op *Op) {
	select {
	case c.oobCh <- op:
	default:
		c.log.Debug("out-of-band channel full, dropping frame", zap.String("kind", op.Kind.String()))
	}
}
