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

package flow

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeVerifier lets each test decide whether a chain should validate,
// without touching the real system trust store.
type fakeVerifier struct {
	valid bool
}

func (v fakeVerifier) Verify(leaf []byte, intermediates [][]byte, serverName string) error {
	if v.valid {
		return nil
	}
	return errInvalidChainForTest
}

var errInvalidChainForTest = fakeVerifyError{}

type fakeVerifyError struct{}

func (fakeVerifyError) Error() string { return "fake verifier: chain rejected" }

/********** wire-format builders, mirroring tlsrecord's test helpers **********/

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func tlsRecord(minor byte, body []byte) []byte {
	out := make([]byte, 5+len(body))
	out[0] = 0x16
	out[1] = 0x03
	out[2] = minor
	binary.BigEndian.PutUint16(out[3:5], uint16(len(body)))
	copy(out[5:], body)
	return out
}

func handshakeMsg(msgType byte, body []byte) []byte {
	out := make([]byte, 4+len(body))
	out[0] = msgType
	out[1] = byte(len(body) >> 16)
	out[2] = byte(len(body) >> 8)
	out[3] = byte(len(body))
	copy(out[4:], body)
	return out
}

func clientHelloRecord(sni string) []byte {
	var ext []byte
	if sni != "" {
		name := append(u16(uint16(len(sni))), []byte(sni)...)
		nameList := append([]byte{0}, name...)
		nameList = append(u16(uint16(len(nameList))), nameList...)
		sniExt := append(u16(0), u16(uint16(len(nameList)))...)
		sniExt = append(sniExt, nameList...)
		ext = append(u16(uint16(len(sniExt))), sniExt...)
	} else {
		ext = []byte{}
	}
	body := []byte{0x03, 0x03}
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)
	body = append(body, u16(2)...)
	body = append(body, 0x00, 0x00)
	body = append(body, 0x01, 0x00)
	body = append(body, ext...)
	return tlsRecord(0x03, handshakeMsg(1, body))
}

func serverHelloRecord(supportedVersion uint16, includeExtension bool) []byte {
	body := []byte{0x03, 0x03}
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)
	body = append(body, u16(0x1301)...)
	body = append(body, 0x00)
	if includeExtension {
		svExt := append(u16(43), u16(2)...)
		svExt = append(svExt, u16(supportedVersion)...)
		body = append(body, u16(uint16(len(svExt)))...)
		body = append(body, svExt...)
	} else {
		body = append(body, u16(0)...)
	}
	return tlsRecord(0x03, handshakeMsg(2, body))
}

func certificateRecord(ders ...[]byte) []byte {
	var list []byte
	for _, der := range ders {
		entry := []byte{byte(len(der) >> 16), byte(len(der) >> 8), byte(len(der))}
		entry = append(entry, der...)
		list = append(list, entry...)
	}
	body := []byte{byte(len(list) >> 16), byte(len(list) >> 8), byte(len(list))}
	body = append(body, list...)
	return tlsRecord(0x03, handshakeMsg(11, body))
}

/********** flow test scaffolding **********/

type handshake struct {
	table      *Table
	key        Key
	clientSeq  uint32
	serverSeq  uint32
	now        time.Time
}

func newHandshake(t *testing.T, verifier fakeVerifier) *handshake {
	table := NewTable(verifier)
	key := Key{
		SrcAddr: netip.MustParseAddr("10.0.0.5"),
		DstAddr: netip.MustParseAddr("93.184.216.34"),
		SrcPort: 51000,
		DstPort: 443,
	}
	h := &handshake{table: table, key: key, clientSeq: 1000, serverSeq: 5000, now: time.Now()}

	outcome, err := table.ProcessOutgoing(key, Packet{Seq: h.clientSeq, SYN: true}, h.now)
	require.NoError(t, err)
	require.Equal(t, Forward, outcome)
	h.clientSeq++

	outcome, err = table.ProcessIncoming(key, Packet{Seq: h.serverSeq, SYN: true, Payload: nil}, h.now)
	_ = outcome
	require.NoError(t, err)
	h.serverSeq++

	outcome, err = table.ProcessOutgoing(key, Packet{Seq: h.clientSeq}, h.now)
	require.NoError(t, err)
	require.Equal(t, Forward, outcome)

	return h
}

func (h *handshake) sendOutgoing(t *testing.T, payload []byte) Outcome {
	outcome, err := h.table.ProcessOutgoing(h.key, Packet{Seq: h.clientSeq, Payload: payload}, h.now)
	require.NoError(t, err)
	h.clientSeq += uint32(len(payload))
	return outcome
}

func (h *handshake) sendIncoming(t *testing.T, payload []byte) Outcome {
	outcome, err := h.table.ProcessIncoming(h.key, Packet{Seq: h.serverSeq, Payload: payload}, h.now)
	require.NoError(t, err)
	h.serverSeq += uint32(len(payload))
	return outcome
}

func (h *handshake) phase() Kind {
	return h.table.flows[h.key].Kind()
}

/********** end-to-end scenarios (spec.md §8) **********/

func TestValidTLS12FlowIsCleared(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: true})

	outcome := h.sendOutgoing(t, clientHelloRecord("example.com"))
	require.Equal(t, Forward, outcome)
	require.Equal(t, KindAwaitingServerHello, h.phase())

	outcome = h.sendIncoming(t, serverHelloRecord(0, false))
	require.Equal(t, Forward, outcome)
	require.Equal(t, KindAwaitingCertificate, h.phase())

	outcome = h.sendIncoming(t, certificateRecord([]byte("fake leaf der")))
	require.Equal(t, Forward, outcome)
	require.Equal(t, KindCleared, h.phase())
}

func TestInvalidCertificateTriggersBad(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: false})

	require.Equal(t, Forward, h.sendOutgoing(t, clientHelloRecord("example.com")))
	require.Equal(t, Forward, h.sendIncoming(t, serverHelloRecord(0, false)))

	outcome := h.sendIncoming(t, certificateRecord([]byte("fake leaf der")))
	require.Equal(t, Invalid, outcome)
	require.Equal(t, KindBad, h.phase())
}

func TestEmptyCertificateListTriggersBad(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: true})

	require.Equal(t, Forward, h.sendOutgoing(t, clientHelloRecord("example.com")))
	require.Equal(t, Forward, h.sendIncoming(t, serverHelloRecord(0, false)))

	outcome := h.sendIncoming(t, certificateRecord())
	require.Equal(t, Invalid, outcome)
	require.Equal(t, KindBad, h.phase())
}

func TestClientHelloWithoutSNIIsBad(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: true})

	outcome := h.sendOutgoing(t, clientHelloRecord(""))
	require.Equal(t, Invalid, outcome)
	require.Equal(t, KindBad, h.phase())
}

func TestTLS13ServerHelloClearsFlow(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: true})

	require.Equal(t, Forward, h.sendOutgoing(t, clientHelloRecord("example.com")))

	outcome := h.sendIncoming(t, serverHelloRecord(0x0304, true))
	require.Equal(t, Forward, outcome)
	require.Equal(t, KindCleared, h.phase())
}

func TestNonTLSFlowOnPort443IsClearedImmediately(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: true})

	outcome := h.sendOutgoing(t, []byte("GET / HTTP/1.1\r\n\r\n"))
	require.Equal(t, Forward, outcome)
	require.Equal(t, KindCleared, h.phase())
}

func TestOutOfOrderClientHelloParsesOnceWhenComplete(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: true})
	record := clientHelloRecord("example.com")

	third := len(record) * 2 / 3
	second := len(record) / 3
	p1, p2, p3 := record[:second], record[second:third], record[third:]

	baseSeq := h.clientSeq
	send := func(offset int, payload []byte) Outcome {
		outcome, err := h.table.ProcessOutgoing(h.key, Packet{Seq: baseSeq + uint32(offset), Payload: payload}, h.now)
		require.NoError(t, err)
		return outcome
	}

	require.Equal(t, Forward, send(third, p3))
	require.Equal(t, KindAwaitingClientHello, h.phase())

	require.Equal(t, Forward, send(0, p1))
	require.Equal(t, KindAwaitingClientHello, h.phase())

	outcome := send(second, p2)
	require.Equal(t, Forward, outcome)
	require.Equal(t, KindAwaitingServerHello, h.phase())
}

func TestUnrecognizedFlowIsReported(t *testing.T) {
	table := NewTable(fakeVerifier{valid: true})
	key := Key{
		SrcAddr: netip.MustParseAddr("10.0.0.9"),
		DstAddr: netip.MustParseAddr("1.2.3.4"),
		SrcPort: 1234,
		DstPort: 443,
	}
	_, err := table.ProcessOutgoing(key, Packet{Seq: 42, Payload: []byte("x")}, time.Now())
	require.ErrorIs(t, err, ErrUnrecognizedFlow)
}

func TestEvictRemovesIdleFlows(t *testing.T) {
	h := newHandshake(t, fakeVerifier{valid: true})
	future := h.now.Add(time.Hour)

	n := h.table.Evict(future, 5*time.Minute, 30*time.Second)
	require.Equal(t, 1, n)
	require.Equal(t, 0, h.table.Len())
}

func TestPeerInitiatedFlowIsNeverValidated(t *testing.T) {
	table := NewTable(fakeVerifier{valid: false})
	// Canonical (client→server) form of this server-initiated flow, as the
	// dispatcher would derive it by reversing the raw packet's 4-tuple.
	key := Key{
		SrcAddr: netip.MustParseAddr("10.0.0.5"),
		DstAddr: netip.MustParseAddr("93.184.216.34"),
		SrcPort: 51001,
		DstPort: 443,
	}
	outcome, err := table.ProcessIncoming(key, Packet{Seq: 1, SYN: true}, time.Now())
	require.NoError(t, err)
	require.Equal(t, Forward, outcome)

	outcome, err = table.ProcessIncoming(key, Packet{Seq: 2, Payload: clientHelloRecord("whatever")}, time.Now())
	require.NoError(t, err)
	require.Equal(t, Forward, outcome)
}
