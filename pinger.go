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
	"time"

	"go.uber.org/zap"
)

// runPinger emits PING every Options.PingInterval while the client is
// Connected, and tracks the outstanding-ping counter. Exceeding
// PingMaxOut transitions the client to Disconnected and triggers a
// reconnect exactly once (§4.5, §8 scenario 6).
func (c *Client) runPinger(stop <-chan struct{}) {
	interval := c.opts.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if c.Status() != StatusConnected {
				continue
			}
			c.currentSender().send(&Op{Kind: OpPing})
			attempts := atomic.AddInt64(&c.pingOutstanding, 1)
			if attempts > int64(c.maxPingOut()) {
				c.log.Error("pings unanswered, assuming disconnected", zap.Int64("outstanding", attempts))
				c.setStatus(StatusDisconnected)
				c.triggerReconnect()
			}
		}
	}
}

func (c *Client) maxPingOut() int {
	if c.opts.PingMaxOut <= 0 {
		return defaultPingMaxOut
	}
	return c.opts.PingMaxOut
}
