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
Package capture is the packet dispatcher: it owns the live pcap handle,
classifies each captured packet as outgoing or incoming relative to the
configured client address, feeds it to the flow table, and either
forwards it untouched or injects a forged RST pair in its place.
*/
package capture

import (
	"log"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/Jigsaw-Code/tlsv/flow"
	"github.com/Jigsaw-Code/tlsv/rstforge"
)

// bpfFilter restricts capture to the only traffic the state machine can
// ever act on: TCP segments over IPv4 or IPv6. Non-TCP traffic is never
// even handed to libpcap.
const bpfFilter = "(ip or ip6) and tcp"

// snapLen is large enough to capture a full-size Ethernet frame; this
// middlebox never needs payload beyond a single TLS record at a time, but
// truncating here would make TCP reassembly itself unreliable.
const snapLen = 65536

// Dispatcher owns the live capture handle for one interface and drives
// every packet it sees through a [flow.Table].
type Dispatcher struct {
	handle    *pcap.Handle
	table     *flow.Table
	clientAddr netip.Addr
}

// Open starts live capture on iface, filtered to clientAddr's TCP
// traffic is unnecessary to presume — the dispatcher inspects every TCP
// flow that crosses the interface, but only treats packets to or from
// clientAddr as this middlebox's "client" direction (spec.md §2).
func Open(iface string, clientAddr netip.Addr, table *flow.Table) (*Dispatcher, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return nil, err
	}
	return &Dispatcher{handle: handle, table: table, clientAddr: clientAddr}, nil
}

// Close releases the underlying capture handle.
func (d *Dispatcher) Close() {
	d.handle.Close()
}

// Run reads packets until the capture handle is closed or a read error
// other than a timeout occurs, dispatching each to process.
func (d *Dispatcher) Run() error {
	src := gopacket.NewPacketSource(d.handle, d.handle.LinkType())
	for pkt := range src.Packets() {
		d.process(pkt)
	}
	return nil
}

// process implements spec.md §7's packet-disposition table: decode,
// classify, hand to the flow table, then forward or inject RSTs.
func (d *Dispatcher) process(pkt gopacket.Packet) {
	netLayer, tcpLayer, err := decode(pkt)
	if err != nil {
		log.Printf("capture: malformed packet, forwarding unchanged: %v", err)
		d.forward(pkt)
		return
	}

	key, outgoing, err := d.classify(netLayer, tcpLayer)
	if err != nil {
		log.Printf("capture: %v, forwarding unchanged", err)
		d.forward(pkt)
		return
	}

	fpkt := flow.Packet{Seq: tcpLayer.Seq, SYN: tcpLayer.SYN, Payload: tcpLayer.Payload}
	now := time.Now()

	var outcome flow.Outcome
	if outgoing {
		outcome, err = d.table.ProcessOutgoing(key, fpkt, now)
	} else {
		outcome, err = d.table.ProcessIncoming(key, fpkt, now)
	}
	if err != nil {
		log.Printf("capture: %v, forwarding unchanged", err)
		d.forward(pkt)
		return
	}

	if outcome == flow.Forward {
		d.forward(pkt)
		return
	}

	d.injectRSTs(key, outgoing, netLayer, tcpLayer)
}

// decode pulls the network (IPv4 or IPv6) and TCP layers out of pkt.
func decode(pkt gopacket.Packet) (gopacket.NetworkLayer, *layers.TCP, error) {
	netLayer := pkt.NetworkLayer()
	if netLayer == nil {
		return nil, nil, errNotIPTCP
	}
	tcpLayer, ok := pkt.TransportLayer().(*layers.TCP)
	if !ok || tcpLayer == nil {
		return nil, nil, errNotIPTCP
	}
	return netLayer, tcpLayer, nil
}

// classify derives the canonical (client→server) flow key for pkt and
// reports whether pkt itself is travelling outgoing (client→server).
func (d *Dispatcher) classify(netLayer gopacket.NetworkLayer, tcp *layers.TCP) (flow.Key, bool, error) {
	srcAddr, dstAddr, err := addrsOf(netLayer)
	if err != nil {
		return flow.Key{}, false, err
	}

	key := flow.Key{
		SrcAddr: srcAddr, DstAddr: dstAddr,
		SrcPort: uint16(tcp.SrcPort), DstPort: uint16(tcp.DstPort),
	}

	switch {
	case srcAddr == d.clientAddr:
		return key, true, nil
	case dstAddr == d.clientAddr:
		return key.Reverse(), false, nil
	default:
		return flow.Key{}, false, errNotClientTraffic
	}
}

func addrsOf(netLayer gopacket.NetworkLayer) (netip.Addr, netip.Addr, error) {
	switch l := netLayer.(type) {
	case *layers.IPv4:
		src, ok1 := netip.AddrFromSlice(l.SrcIP.To4())
		dst, ok2 := netip.AddrFromSlice(l.DstIP.To4())
		if !ok1 || !ok2 {
			return netip.Addr{}, netip.Addr{}, errNotIPTCP
		}
		return src, dst, nil
	case *layers.IPv6:
		src, ok1 := netip.AddrFromSlice(l.SrcIP.To16())
		dst, ok2 := netip.AddrFromSlice(l.DstIP.To16())
		if !ok1 || !ok2 {
			return netip.Addr{}, netip.Addr{}, errNotIPTCP
		}
		return src, dst, nil
	default:
		return netip.Addr{}, netip.Addr{}, errNotIPTCP
	}
}

func (d *Dispatcher) forward(pkt gopacket.Packet) {
	if err := d.handle.WritePacketData(pkt.Data()); err != nil {
		log.Printf("capture: failed to forward packet: %v", err)
	}
}

// injectRSTs builds and writes the forward/reverse RST pair for a flow
// that just transitioned to Bad, per spec.md §4.4. The triggering packet
// itself is dropped, not forwarded.
func (d *Dispatcher) injectRSTs(key flow.Key, outgoing bool, netLayer gopacket.NetworkLayer, tcp *layers.TCP) {
	peerNext, ok := d.table.PeerNextSeq(key, outgoing)
	if !ok {
		return
	}

	srcAddr, dstAddr, err := addrsOf(netLayer)
	if err != nil {
		return
	}

	orig := rstforge.Original{
		SrcAddr: srcAddr, DstAddr: dstAddr,
		SrcPort: uint16(tcp.SrcPort), DstPort: uint16(tcp.DstPort),
		Seq:         tcp.Seq,
		AckSeq:      tcp.Ack,
		PeerNextSeq: peerNext,
	}
	forward, reverse, err := rstforge.Pair(orig)
	if err != nil {
		log.Printf("capture: failed to forge RSTs: %v", err)
		return
	}
	if err := d.handle.WritePacketData(forward); err != nil {
		log.Printf("capture: failed to inject forward RST: %v", err)
	}
	if err := d.handle.WritePacketData(reverse); err != nil {
		log.Printf("capture: failed to inject reverse RST: %v", err)
	}
}
