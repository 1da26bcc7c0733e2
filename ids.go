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
	"fmt"

	"github.com/nats-io/nuid"
)

// InboxPrefix is prepended to every generated inbox subject.
const InboxPrefix = "_INBOX."

// idGen generates subscription ids and inbox subjects. Every Client owns
// its own generator instance so tests can run many clients in one process
// without id collisions mattering across them.
type idGen struct {
	n *nuid.NUID
}

func newIDGen() *idGen {
	return &idGen{n: nuid.New()}
}

// nextSid returns a fresh, unique subscription id.
func (g *idGen) nextSid() string {
	return g.n.Next()
}

// newInbox returns a fresh, unique inbox subject for request/reply.
func (g *idGen) newInbox() string {
	return fmt.Sprintf("%s%s", InboxPrefix, g.n.Next())
}
