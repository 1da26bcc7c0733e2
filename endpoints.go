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
	"net"
	"net/url"
	"strconv"
	"strings"
)

// candidate is one resolved dial target: its logical URL (used for
// credentials and TLS server-name) plus a concrete host:port to dial.
type candidate struct {
	url      *url.URL
	hostPort string
}

// normalizeEndpoint adds the "nats://" scheme if absent and a default
// port if absent, per §6/§4.7 step 3.
func normalizeEndpoint(raw string) (*url.URL, error) {
	s := raw
	if !strings.Contains(s, "://") {
		s = "nats://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("natscore: bad endpoint url %q: %w", raw, err)
	}
	if u.Port() == "" {
		host := u.Hostname()
		u.Host = net.JoinHostPort(host, strconv.Itoa(DefaultPort))
	}
	return u, nil
}

// resolveCandidates parses and DNS-resolves every endpoint in raws, each
// resolved address becoming an independent candidate, per §4.7 step 3.
func resolveCandidates(raws []string) []candidate {
	var out []candidate
	for _, raw := range raws {
		u, err := normalizeEndpoint(raw)
		if err != nil {
			continue
		}
		host := u.Hostname()
		port := u.Port()
		if ip := net.ParseIP(host); ip != nil {
			out = append(out, candidate{url: u, hostPort: net.JoinHostPort(host, port)})
			continue
		}
		ips, err := net.LookupHost(host)
		if err != nil || len(ips) == 0 {
			// Unresolvable host: still offer it as a candidate so the
			// dialer's own error (e.g. via a custom resolver in tests)
			// surfaces instead of silently vanishing.
			out = append(out, candidate{url: u, hostPort: net.JoinHostPort(host, port)})
			continue
		}
		for _, ip := range ips {
			out = append(out, candidate{url: u, hostPort: net.JoinHostPort(ip, port)})
		}
	}
	return out
}

// credentialsFromURL extracts user:password@ from an endpoint URL string,
// used to override configured Username/Password per §4.4.
func credentialsFromURL(raw string) (user, pass string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return "", "", false
	}
	user = u.User.Username()
	pass, _ = u.User.Password()
	if user == "" && pass == "" {
		return "", "", false
	}
	return user, pass, true
}
