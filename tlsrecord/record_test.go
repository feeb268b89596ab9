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
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func constructRecord(t *testing.T, typ layers.TLSType, ver layers.TLSVersion, payload []byte) []byte {
	pkt := layers.TLS{
		AppData: []layers.TLSAppDataRecord{{
			TLSRecordHeader: layers.TLSRecordHeader{
				ContentType: typ,
				Version:     ver,
				Length:      uint16(len(payload)),
			},
			Payload: payload,
		}},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, pkt.SerializeTo(buf, gopacket.SerializeOptions{}))
	return buf.Bytes()
}

func handshakeBytes(msgType byte, body []byte) []byte {
	out := make([]byte, 4+len(body))
	out[0] = msgType
	out[1] = byte(len(body) >> 16)
	out[2] = byte(len(body) >> 8)
	out[3] = byte(len(body))
	copy(out[4:], body)
	return out
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func clientHelloBody(sni string) []byte {
	var ext []byte
	if sni != "" {
		name := append(u16(uint16(len(sni))), []byte(sni)...)
		nameList := append([]byte{0}, name...) // name_type DNS == 0
		nameList = append(u16(uint16(len(nameList))), nameList...)
		sniExt := append(u16(0), u16(uint16(len(nameList)))...) // extension type 0 (server_name)
		sniExt = append(sniExt, nameList...)
		ext = append(u16(uint16(len(sniExt))), sniExt...)
	} else {
		ext = []byte{}
	}

	body := []byte{0x03, 0x03}             // legacy client version
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0x00)              // session id len
	body = append(body, u16(2)...)         // cipher suites len
	body = append(body, 0x00, 0x00)        // one cipher suite
	body = append(body, 0x01, 0x00)        // compression methods
	body = append(body, ext...)
	return body
}

func TestReadRecordNeedsMoreBytes(t *testing.T) {
	_, err := ReadRecord([]byte{0x16, 0x03, 0x01})
	require.ErrorIs(t, err, ErrNeedMore)
}

func TestReadRecordRejectsNonHandshakeType(t *testing.T) {
	rec := constructRecord(t, layers.TLSApplicationData, layers.TLSVersion(0x0303), []byte("hi"))
	_, err := ReadRecord(rec)
	require.ErrorIs(t, err, ErrNotTLS)
}

func TestReadRecordRejectsOversizedLength(t *testing.T) {
	header := []byte{0x16, 0x03, 0x03, 0xFF, 0xFF}
	_, err := ReadRecord(header)
	require.ErrorIs(t, err, ErrNotTLS)
}

func TestReadRecordSplitAtHeaderBoundary(t *testing.T) {
	body := handshakeBytes(msgTypeClientHello, clientHelloBody("example.com"))
	rec := constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0301), body)

	// First 5 bytes only: must be NeedMore, not Parsed.
	_, err := ReadRecord(rec[:HeaderLen])
	require.ErrorIs(t, err, ErrNeedMore)

	// The rest arrives: now it parses.
	got, err := ReadRecord(rec)
	require.NoError(t, err)
	require.Equal(t, len(rec), got.TotalLen)
}

func TestParseClientHelloWithSNI(t *testing.T) {
	body := handshakeBytes(msgTypeClientHello, clientHelloBody("example.com"))
	rec, err := ReadRecord(constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0301), body))
	require.NoError(t, err)

	hello, err := ParseClientHello(rec, netip.MustParseAddr("93.184.216.34"))
	require.NoError(t, err)
	require.True(t, hello.HasServerName)
	require.Equal(t, "example.com", hello.ServerName)
}

func TestParseClientHelloWithIPLiteralServerName(t *testing.T) {
	body := handshakeBytes(msgTypeClientHello, clientHelloBody("93.184.216.34"))
	rec, err := ReadRecord(constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0301), body))
	require.NoError(t, err)

	hello, err := ParseClientHello(rec, netip.MustParseAddr("93.184.216.34"))
	require.NoError(t, err)
	require.True(t, hello.HasServerName)
	require.Equal(t, "93.184.216.34", hello.ServerName)
}

func TestParseClientHelloWithoutExtensions(t *testing.T) {
	body := handshakeBytes(msgTypeClientHello, clientHelloBody(""))
	rec, err := ReadRecord(constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0301), body))
	require.NoError(t, err)

	hello, err := ParseClientHello(rec, netip.MustParseAddr("93.184.216.34"))
	require.NoError(t, err)
	require.False(t, hello.HasServerName)
}

func serverHelloBody(supportedVersion uint16, includeExt bool) []byte {
	body := []byte{0x03, 0x03}
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)       // session id len
	body = append(body, 0x00, 0x2f) // cipher suite
	body = append(body, 0x00)       // compression method

	if !includeExt {
		return body
	}
	extData := u16(supportedVersion)
	ext := append(u16(43), u16(uint16(len(extData)))...)
	ext = append(ext, extData...)
	exts := append(u16(uint16(len(ext))), ext...)
	return append(body, exts...)
}

func TestParseServerHelloTLS12NoExtension(t *testing.T) {
	body := handshakeBytes(msgTypeServerHello, serverHelloBody(0, false))
	rec, err := ReadRecord(constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0303), body))
	require.NoError(t, err)

	sh, err := ParseServerHello(rec)
	require.NoError(t, err)
	require.True(t, sh.IsTLS12)
}

func TestParseServerHelloTLS13ViaSupportedVersions(t *testing.T) {
	body := handshakeBytes(msgTypeServerHello, serverHelloBody(0x0304, true))
	rec, err := ReadRecord(constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0303), body))
	require.NoError(t, err)

	sh, err := ParseServerHello(rec)
	require.NoError(t, err)
	require.False(t, sh.IsTLS12)
}

func certificateBody(ders ...[]byte) []byte {
	var list []byte
	for _, der := range ders {
		entry := make([]byte, 3+len(der))
		entry[0] = byte(len(der) >> 16)
		entry[1] = byte(len(der) >> 8)
		entry[2] = byte(len(der))
		copy(entry[3:], der)
		list = append(list, entry...)
	}
	out := make([]byte, 3+len(list))
	out[0] = byte(len(list) >> 16)
	out[1] = byte(len(list) >> 8)
	out[2] = byte(len(list))
	copy(out[3:], list)
	return out
}

func TestParseCertificateList(t *testing.T) {
	leaf := []byte("leaf-der-bytes")
	intermediate := []byte("intermediate-der-bytes")
	body := handshakeBytes(msgTypeCertificate, certificateBody(leaf, intermediate))
	rec, err := ReadRecord(constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0303), body))
	require.NoError(t, err)

	certs, err := ParseCertificate(rec)
	require.NoError(t, err)
	require.Equal(t, [][]byte{leaf, intermediate}, certs)
}

func TestParseCertificateEmptyList(t *testing.T) {
	body := handshakeBytes(msgTypeCertificate, certificateBody())
	rec, err := ReadRecord(constructRecord(t, layers.TLSHandshake, layers.TLSVersion(0x0303), body))
	require.NoError(t, err)

	certs, err := ParseCertificate(rec)
	require.NoError(t, err)
	require.Empty(t, certs)
}
