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

const extensionSupportedVersions uint16 = 43

// versionTLS12 is the two-byte ProtocolVersion value for TLS 1.2, used both
// as the record-layer legacy version and inside the supported_versions
// extension.
const versionTLS12 uint16 = 0x0303

// ServerHello is the subset of a parsed ServerHello this middlebox needs.
type ServerHello struct {
	// IsTLS12 reports whether this ServerHello negotiated TLS 1.2: the
	// record header claimed TLS 1.2 *and* either there was no
	// supported_versions extension, or that extension also named TLS 1.2.
	// A ServerHello answering with TLS 1.3 also sets the record-layer
	// version to TLS 1.2 for backwards compatibility, so the record header
	// alone cannot rule out TLS 1.3; the extension, when present, must
	// name TLS 1.2 as well.
	IsTLS12 bool
}

// ParseServerHello decodes record's Body (whose message type byte must be
// [msgTypeServerHello]) far enough to determine the negotiated TLS
// version.
func ParseServerHello(record *Record) (*ServerHello, error) {
	typ, body, err := handshakeMessage(record.Body)
	if err != nil {
		return nil, err
	}
	if typ != msgTypeServerHello {
		return nil, ErrNotTLS
	}

	s := cryptobyte.String(body)
	var legacyVersion uint16
	if !s.ReadUint16(&legacyVersion) || !s.Skip(32) {
		return nil, ErrNotTLS
	}

	var sessionID cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&sessionID) {
		return nil, ErrNotTLS
	}

	var cipherSuite uint16
	var compressionMethod uint8
	if !s.ReadUint16(&cipherSuite) || !s.ReadUint8(&compressionMethod) {
		return nil, ErrNotTLS
	}

	hello := &ServerHello{IsTLS12: legacyVersion == versionTLS12 && record.IsTLS12}

	if s.Empty() {
		// No extensions: the legacy version stands.
		return hello, nil
	}

	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) || !s.Empty() {
		return nil, ErrNotTLS
	}

	for !extensions.Empty() {
		var extType uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&extData) {
			return nil, ErrNotTLS
		}
		if extType != extensionSupportedVersions {
			continue
		}
		var selected uint16
		if !extData.ReadUint16(&selected) {
			return nil, ErrNotTLS
		}
		hello.IsTLS12 = hello.IsTLS12 && selected == versionTLS12
		break
	}

	return hello, nil
}
