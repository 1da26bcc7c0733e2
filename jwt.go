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
	"encoding/base64"

	"github.com/nats-io/nkeys"
)

// Signer signs the server-supplied nonce bytes during the JWT challenge
// handshake (§4.4). It is supplied by the caller via UserJWT; on failure
// the handshake proceeds without jwt/sig and the failure is logged.
type Signer func(nonce []byte) ([]byte, error)

// UserJWT configures JWT-based authentication for CONNECT.
type UserJWT struct {
	JWT    string
	Signer Signer
}

// NewNkeysSigner builds a Signer backed by an nkeys seed, the concrete
// signing mechanism the NATS ecosystem uses for nonce challenges.
func NewNkeysSigner(seed []byte) (Signer, error) {
	kp, err := nkeys.FromSeed(seed)
	if err != nil {
		return nil, err
	}
	return func(nonce []byte) ([]byte, error) {
		return kp.Sign(nonce)
	}, nil
}

// signNonce runs signer and base64url-nopad encodes the result, per §4.4:
// sig = BASE64URL_NOPAD(signer(server_info.nonce_bytes)).
func signNonce(signer Signer, nonce string) (string, error) {
	sig, err := signer([]byte(nonce))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}
