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
	"errors"
	"net/netip"

	"github.com/Jigsaw-Code/tlsv/certverify"
	"github.com/Jigsaw-Code/tlsv/tlsrecord"
)

// advanceOutgoing feeds an outgoing (client→server) packet's payload into
// the flow's current phase and drives whatever transition follows, per
// spec.md §4.3. Only the AwaitingClientHello phase reacts to outgoing
// data; every other phase either doesn't buffer in this direction or is
// already absorbing. dstAddr is the flow's server-side address, needed to
// resolve an IP-literal server_name entry in the ClientHello.
func advanceOutgoing(state *State, pkt Packet, dstAddr netip.Addr) {
	phase, ok := state.Phase.(awaitingClientHello)
	if !ok || len(pkt.Payload) == 0 {
		return
	}
	phase.buf.Add(pkt.Seq, pkt.Payload)

	record, err := tlsrecord.ReadRecord(phase.buf.Data())
	switch {
	case errors.Is(err, tlsrecord.ErrNeedMore):
		return
	case errors.Is(err, tlsrecord.ErrNotTLS):
		// Not a TLS handshake we can inspect: stop looking at this flow
		// and forward it untouched from now on (spec.md §4.3).
		state.Phase = cleared{}
		return
	case err != nil:
		state.Phase = cleared{}
		return
	}

	hello, err := tlsrecord.ParseClientHello(record, dstAddr)
	if err != nil {
		state.Phase = cleared{}
		return
	}
	phase.buf.Drain(record.TotalLen)

	if !hello.HasServerName {
		// Policy: a TLS flow with no SNI can never be matched against a
		// server name, so it can never be validated; block it outright
		// rather than let it through uninspected (spec.md §4.3, §7).
		state.Phase = bad{}
		return
	}
	state.Phase = newAwaitingServerHello(state.ServerNextSeq.Get(), hello.ServerName)
}

// advanceIncoming feeds an incoming (server→client) packet's payload into
// the flow's current phase and drives whatever transition follows, per
// spec.md §4.3. AwaitingServerHello and AwaitingCertificate both buffer in
// this direction; every other phase ignores incoming data.
func advanceIncoming(state *State, pkt Packet, verifier certverify.Verifier) {
	switch phase := state.Phase.(type) {
	case awaitingServerHello:
		advanceAwaitingServerHello(state, phase, pkt)
	case awaitingCertificate:
		advanceAwaitingCertificate(state, phase, pkt, verifier)
	}
}

func advanceAwaitingServerHello(state *State, phase awaitingServerHello, pkt Packet) {
	if len(pkt.Payload) > 0 {
		phase.buf.Add(pkt.Seq, pkt.Payload)
	}

	record, err := tlsrecord.ReadRecord(phase.buf.Data())
	switch {
	case errors.Is(err, tlsrecord.ErrNeedMore):
		return
	case err != nil:
		state.Phase = cleared{}
		return
	}

	hello, err := tlsrecord.ParseServerHello(record)
	if err != nil {
		state.Phase = cleared{}
		return
	}
	phase.buf.Drain(record.TotalLen)

	if !hello.IsTLS12 {
		// TLS 1.3 encrypts the Certificate message; this middlebox has no
		// key material to decrypt it, so it cannot validate this flow
		// (spec.md §4.3, the TLS 1.3 case).
		state.Phase = cleared{}
		return
	}
	state.Phase = newAwaitingCertificate(phase.buf, phase.serverName)
}

func advanceAwaitingCertificate(state *State, phase awaitingCertificate, pkt Packet, verifier certverify.Verifier) {
	if len(pkt.Payload) > 0 {
		phase.buf.Add(pkt.Seq, pkt.Payload)
	}

	record, err := tlsrecord.ReadRecord(phase.buf.Data())
	switch {
	case errors.Is(err, tlsrecord.ErrNeedMore):
		return
	case err != nil:
		state.Phase = cleared{}
		return
	}

	chain, err := tlsrecord.ParseCertificate(record)
	if err != nil {
		state.Phase = cleared{}
		return
	}
	phase.buf.Drain(record.TotalLen)

	if len(chain) == 0 {
		// Policy: an empty certificate list is one of only two paths to
		// Bad (spec.md §8, §9) — treated the same as a failed
		// verification, not as an uninspectable flow.
		state.Phase = bad{}
		return
	}

	if err := verifier.Verify(chain[0], chain[1:], phase.serverName); err != nil {
		state.Phase = bad{}
		return
	}
	state.Phase = cleared{}
}
