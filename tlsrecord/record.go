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

/*
Package tlsrecord decodes just enough of the TLS record and handshake
layers to drive the per-flow state machine: record framing, and the
ClientHello/ServerHello/Certificate handshake messages that ride inside it.
It deliberately stops short of a full TLS implementation — there is no key
schedule, no cipher negotiation, and no decryption here.
*/
package tlsrecord

import (
	"encoding/binary"

	"golang.org/x/crypto/cryptobyte"
)

// TLS record layout, RFC 8446 §5.1:
//
//	+-------------+ 0
//	| RecordType  |
//	+-------------+ 1
//	|  Protocol   |
//	|  Version    |
//	+-------------+ 3
//	|   Record    |
//	|   Length    |
//	+-------------+ 5
//	|   Message   |
//	|    Data     |
const (
	HeaderLen     = 5
	MaxRecordLen  = 16384
	recordTypeHandshake byte = 0x16
)

// Handshake message type bytes, RFC 8446 §4.
const (
	msgTypeClientHello byte = 1
	msgTypeServerHello byte = 2
	msgTypeCertificate byte = 11
)

// Record is a fully-received TLS record whose handshake body has not yet
// been interpreted as any particular message type.
type Record struct {
	// IsTLS12 reports whether the record header's minor version byte is 3
	// (TLS 1.2). It is not sufficient on its own to rule out TLS 1.3: a
	// TLS 1.3 ClientHello is sent inside a record labelled as TLS 1.0, and
	// a TLS 1.3 ServerHello is sent inside a record labelled as TLS 1.2.
	IsTLS12 bool
	// TotalLen is the number of bytes this record occupies, header
	// included, and is how many bytes the caller should Drain once it is
	// done with the record.
	TotalLen int
	// Body is the handshake message bytes following the 5-byte record
	// header: one byte of message type, a 3-byte big-endian length, and
	// the message payload.
	Body []byte
}

// ReadRecord attempts to decode one TLS handshake record from the front of
// data, which is typically the contiguous prefix returned by a
// [reassembly.Buffer]'s Data method.
//
// It returns (nil, ErrNeedMore) if data does not yet contain a complete
// record, and (nil, ErrNotTLS) if the header present is not a handshake
// record with a plausible version and length — callers should treat
// ErrNotTLS as "this flow is not TLS 1.2 handshake traffic we can validate,"
// not as a hard error.
func ReadRecord(data []byte) (*Record, error) {
	if len(data) < HeaderLen {
		return nil, ErrNeedMore
	}

	recordType := data[0]
	major := data[1]
	minor := data[2]
	length := binary.BigEndian.Uint16(data[3:5])

	if recordType != recordTypeHandshake || major != 0x03 || length > MaxRecordLen {
		return nil, ErrNotTLS
	}

	total := HeaderLen + int(length)
	if len(data) < total {
		return nil, ErrNeedMore
	}

	return &Record{
		IsTLS12:  minor == 3,
		TotalLen: total,
		Body:     data[HeaderLen:total],
	}, nil
}

// handshakeMessage splits a record body into its message type and the
// message payload, verifying that the message's claimed length matches the
// available body.
func handshakeMessage(body []byte) (msgType byte, payload []byte, err error) {
	s := cryptobyte.String(body)
	var typ uint8
	var msg cryptobyte.String
	if !s.ReadUint8(&typ) || !s.ReadUint24LengthPrefixed(&msg) || !s.Empty() {
		return 0, nil, ErrNotTLS
	}
	return typ, msg, nil
}
