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
Package rstforge builds the pair of forged RST segments spec.md §4.4 calls
for once a flow's chain fails validation: one addressed to the client that
looks like it came from the server, and one addressed to the server that
looks like it came from the client. Neither endpoint is told anything
other than "this connection is gone" — the middlebox never terminates TLS
itself.
*/
package rstforge

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Original carries the fields of the triggering packet needed to build
// both RSTs: its own 4-tuple and direction, and the sequence number the
// packet's sender is currently expecting next from its peer (used as the
// reverse RST's sequence number, per spec.md §4.4).
type Original struct {
	SrcAddr, DstAddr netip.Addr
	SrcPort, DstPort uint16
	Seq              uint32
	AckSeq           uint32
	PeerNextSeq      uint32
}

// Pair builds the two forged RST segments for one invalid flow: Forward
// travels in the same direction as the triggering packet and reuses its
// own sequence number (so the receiving endpoint, already expecting that
// sequence, accepts it immediately); Reverse travels the opposite way and
// carries PeerNextSeq so the endpoint that sent the triggering packet also
// accepts its RST as in-window.
func Pair(orig Original) (forward, reverse []byte, err error) {
	forward, err = build(orig.SrcAddr, orig.DstAddr, orig.SrcPort, orig.DstPort, orig.Seq, orig.AckSeq)
	if err != nil {
		return nil, nil, fmt.Errorf("rstforge: forward: %w", err)
	}
	reverse, err = build(orig.DstAddr, orig.SrcAddr, orig.DstPort, orig.SrcPort, orig.PeerNextSeq, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("rstforge: reverse: %w", err)
	}
	return forward, reverse, nil
}

// build serializes one minimal, payload-free RST segment with correctly
// computed IP and TCP checksums, addressed from src to dst.
func build(src, dst netip.Addr, srcPort, dstPort uint16, seq, ackSeq uint32) ([]byte, error) {
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq,
		Ack:     ackSeq,
		RST:     true,
		ACK:     ackSeq != 0,
		Window:  0,
	}

	var network gopacket.SerializableLayer
	if src.Is4() {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	} else {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      net.IP(src.AsSlice()),
			DstIP:      net.IP(dst.AsSlice()),
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, network, tcp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
