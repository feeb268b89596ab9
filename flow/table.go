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
Package flow owns the flow table and drives each flow through spec.md
§4.3's per-flow state machine: awaiting ClientHello, awaiting ServerHello,
awaiting Certificate, and the two absorbing states Cleared and Bad.
*/
package flow

import (
	"sync"
	"time"

	"github.com/Jigsaw-Code/tlsv/certverify"
)

// Packet is the subset of an observed TCP segment the state machine needs:
// its sequence number, whether SYN was set, and its payload.
type Packet struct {
	Seq     uint32
	SYN     bool
	Payload []byte
}

// Table maps 4-tuples to per-flow state. A Table is always keyed on the
// outgoing (client→server) direction of each flow; callers processing an
// incoming packet must pass its Key.Reverse() so that both directions of
// the same conversation land on the same entry.
//
// Table is safe for concurrent use: its only shared resource is the flow
// map itself, protected by a single mutex, matching spec.md §5's
// single-owner model (or a sharded variant of it).
type Table struct {
	mu       sync.Mutex
	flows    map[Key]*State
	verifier certverify.Verifier
}

// NewTable creates an empty flow table that validates certificate chains
// using verifier.
func NewTable(verifier certverify.Verifier) *Table {
	return &Table{
		flows:    make(map[Key]*State),
		verifier: verifier,
	}
}

// ProcessOutgoing handles one packet observed travelling from the client to
// the server, identified by its canonical (client→server) key.
func (t *Table) ProcessOutgoing(key Key, pkt Packet, now time.Time) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.lookupOrCreate(key, pkt, true, now)
	if err != nil {
		return Forward, err
	}
	state.LastSeen = now
	state.ClientNextSeq.Advance(nextSeqAfter(pkt))

	advanceOutgoing(state, pkt, key.DstAddr)

	if state.Kind() == KindBad {
		return Invalid, nil
	}
	return Forward, nil
}

// ProcessIncoming handles one packet observed travelling from the server to
// the client, identified by the canonical (client→server) key — i.e. the
// caller must reverse the packet's own 4-tuple before calling this.
func (t *Table) ProcessIncoming(key Key, pkt Packet, now time.Time) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.lookupOrCreate(key, pkt, false, now)
	if err != nil {
		return Forward, err
	}
	state.LastSeen = now
	state.ServerNextSeq.Advance(nextSeqAfter(pkt))

	advanceIncoming(state, pkt, t.verifier)

	if state.Kind() == KindBad {
		return Invalid, nil
	}
	return Forward, nil
}

// PeerNextSeq reports the flow's current peer-facing sequence tracker for
// RST forging, and whether the flow was found at all.
func (t *Table) PeerNextSeq(key Key, triggeredByOutgoing bool) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.flows[key]
	if !ok {
		return 0, false
	}
	return state.PeerNextSeq(triggeredByOutgoing), true
}

// lookupOrCreate implements spec.md §3's lifecycle rule: a flow is created
// on an observed client SYN (entering AwaitingClientHello) or on an
// observed incoming SYN from the peer (entering PeerInitiated, never
// validated). A non-SYN packet for an unknown flow is an error.
func (t *Table) lookupOrCreate(key Key, pkt Packet, isOutgoing bool, now time.Time) (*State, error) {
	if pkt.SYN {
		if state, ok := t.flows[key]; ok {
			return state, nil
		}
		state := &State{LastSeen: now}
		if isOutgoing {
			state.Phase = newAwaitingClientHello(pkt.Seq + 1)
		} else {
			state.Phase = peerInitiated{}
		}
		t.flows[key] = state
		return state, nil
	}

	state, ok := t.flows[key]
	if !ok {
		return nil, ErrUnrecognizedFlow
	}
	return state, nil
}

// nextSeqAfter computes the wrapping sequence number that follows pkt,
// i.e. the value its sender's next packet is expected to carry: its
// sequence number plus its payload length, plus one more if SYN was set
// (the SYN itself consumes one sequence number).
func nextSeqAfter(pkt Packet) uint32 {
	next := pkt.Seq + uint32(len(pkt.Payload))
	if pkt.SYN {
		next++
	}
	return next
}

// Evict removes every flow whose LastSeen is older than idle, or, for a
// flow already in a terminal phase (Cleared or Bad), older than
// terminalIdle. It is the operation the flow sweeper runs periodically;
// see [Sweep].
func (t *Table) Evict(now time.Time, idle, terminalIdle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for key, state := range t.flows {
		threshold := idle
		if state.isTerminal() {
			threshold = terminalIdle
		}
		if now.Sub(state.LastSeen) > threshold {
			delete(t.flows, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of flows currently tracked, for tests and metrics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}
