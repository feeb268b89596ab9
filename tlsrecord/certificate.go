// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tlsrecord

import "golang.org/x/crypto/cryptobyte"

// ParseCertificate decodes record's Body (whose message type byte must be
// [msgTypeCertificate]) into the list of DER-encoded certificates it
// carries, leaf first, exactly as they appeared on the wire.
//
// This is the TLS 1.2 Certificate message shape (RFC 5246 §7.4.2): a single
// 24-bit-length-prefixed list of 24-bit-length-prefixed DER certificates,
// with no certificate_request_context or per-certificate extensions (those
// belong to TLS 1.3's Certificate message, which this middlebox never
// reaches — see the ServerHello version gate).
func ParseCertificate(record *Record) ([][]byte, error) {
	typ, body, err := handshakeMessage(record.Body)
	if err != nil {
		return nil, err
	}
	if typ != msgTypeCertificate {
		return nil, ErrNotTLS
	}

	s := cryptobyte.String(body)
	var certList cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&certList) || !s.Empty() {
		return nil, ErrNotTLS
	}

	var certs [][]byte
	for !certList.Empty() {
		var der cryptobyte.String
		if !certList.ReadUint24LengthPrefixed(&der) {
			return nil, ErrNotTLS
		}
		certs = append(certs, []byte(der))
	}
	return certs, nil
}
