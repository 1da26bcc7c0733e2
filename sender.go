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

// sender is a thin writer that serializes one outbound frame onto the
// connection's sink (§4.3). Publish-time payload-size checks live in the
// public API, not here; the sender is fire-and-forget, since §4.1
// guarantees a disconnected transport triggers reconnection rather than
// surfacing an error to the caller.
type sender struct {
	conn *Connection
}

func newSender(conn *Connection) *sender {
	return &sender{conn: conn}
}

// send enqueues op and flushes it. The boolean return is informational
// only: replaySubscriptions logs a false result, and no caller surfaces
// it as an error.
func (s *sender) send(op *Op) bool {
	if !s.conn.trySend(op) {
		return false
	}
	return s.conn.flush()
}
