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

import (
	"net/netip"

	"golang.org/x/crypto/cryptobyte"
)

const extensionServerName uint16 = 0

// ClientHello is the subset of a parsed ClientHello this middlebox needs.
type ClientHello struct {
	// ServerName is the name to validate the certificate against: the DNS
	// name carried in the server_name extension, or, if that entry's text
	// is itself an IP-address literal, the packet's actual destination
	// address substituted in its place (matching rustls's
	// ServerNamePayload::IpAddress handling in the original source). It is
	// "" if the extension was absent, empty, or malformed; an entry with an
	// empty name is skipped, so it is reported the same as an absent one.
	ServerName string
	// HasServerName reports whether a usable server_name entry (DNS name
	// or IP-address literal) was found. An extension present but carrying
	// a type the spec treats as invalid or unrecognized (e.g. a malformed
	// name-type list entry) leaves this false, matching this middlebox's
	// policy of treating an ill-formed server_name extension the same as
	// an absent one rather than rejecting the flow outright.
	HasServerName bool
}

// ParseClientHello decodes record's Body (whose message type byte must be
// [msgTypeClientHello]) and extracts the server_name extension.
// dstAddr is the packet's own destination address, substituted for the
// extension's entry when that entry's text is an IP-address literal rather
// than a DNS name (RFC 6066 §3, and the original source's
// ServerNamePayload::IpAddress case).
//
// It is derived from the unmarshalling logic in the Go standard library's
// crypto/tls package, reading just far enough into the structure to reach
// the extensions block.
func ParseClientHello(record *Record, dstAddr netip.Addr) (*ClientHello, error) {
	typ, body, err := handshakeMessage(record.Body)
	if err != nil {
		return nil, err
	}
	if typ != msgTypeClientHello {
		return nil, ErrNotTLS
	}

	s := cryptobyte.String(body)
	// Skip uint16 legacy client version and the 32-byte random.
	var sessionID cryptobyte.String
	if !s.Skip(2+32) || !s.ReadUint8LengthPrefixed(&sessionID) {
		return nil, ErrNotTLS
	}

	var cipherSuites cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&cipherSuites) {
		return nil, ErrNotTLS
	}

	var compressionMethods cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&compressionMethods) {
		return nil, ErrNotTLS
	}

	hello := &ClientHello{}
	if s.Empty() {
		// No extensions block: a legal (if ancient) ClientHello with no SNI.
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
		if extType != extensionServerName {
			continue
		}
		if name, ok := parseServerNameExtension(extData); ok {
			if _, err := netip.ParseAddr(name); err == nil {
				// The entry's text is itself an IP-address literal, not a
				// DNS name: validate against where the packet is actually
				// headed, not the claimed literal.
				hello.ServerName = dstAddr.String()
			} else {
				hello.ServerName = name
			}
			hello.HasServerName = true
		}
		// A malformed server_name extension is treated as absent SNI
		// rather than a parse failure (spec.md §9, open question (a)).
	}

	return hello, nil
}

// parseServerNameExtension reads RFC 6066 §3's ServerNameList and returns
// the first DNS-type (name_type == 0) entry found.
func parseServerNameExtension(extData cryptobyte.String) (string, bool) {
	var nameList cryptobyte.String
	if !extData.ReadUint16LengthPrefixed(&nameList) || nameList.Empty() {
		return "", false
	}
	for !nameList.Empty() {
		var nameType uint8
		var name cryptobyte.String
		if !nameList.ReadUint8(&nameType) || !nameList.ReadUint16LengthPrefixed(&name) {
			return "", false
		}
		if nameType != 0 || name.Empty() {
			continue
		}
		return string(name), true
	}
	return "", false
}
