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
	"time"

	"github.com/Jigsaw-Code/tlsv/tlsrecord"
)

// bufferCapacity is the fixed size of every reassembly buffer this package
// creates, per spec.md §3: twice a single maximal TLS record, so that one
// full record plus a second record's worth of out-of-order lookahead always
// fits.
const bufferCapacity = 2 * (tlsrecord.HeaderLen + tlsrecord.MaxRecordLen)

// Outcome is what a caller should do with the packet it just handed to
// [Table.ProcessOutgoing] or [Table.ProcessIncoming].
type Outcome int

const (
	// Forward means this packet (and, implicitly, every earlier packet of
	// the flow) was not rejected: pass it on unchanged.
	Forward Outcome = iota
	// Invalid means this flow's phase just transitioned to Bad: the
	// caller should forge and inject RST segments and drop the original
	// packet instead of forwarding it.
	Invalid
)

// State is one flow's mutable record: when it was last seen, the two
// directions' next-expected-sequence trackers, and which phase of
// spec.md §4.3's transition table it currently occupies.
type State struct {
	LastSeen time.Time

	// ClientNextSeq is the next sequence number expected from the client
	// (the server's ACK target); ServerNextSeq is the symmetric value for
	// the server direction (the client's ACK target). Both only ever
	// advance under wrap-aware comparison (see nextSeq.Advance).
	ClientNextSeq nextSeq
	ServerNextSeq nextSeq

	Phase phaseState
}

// Kind reports which phase of the transition table this flow occupies.
func (s *State) Kind() Kind {
	return s.Phase.Kind()
}

// PeerNextSeq returns the sequence number a reverse RST must carry, per
// spec.md §4.4. The reverse RST travels back to the endpoint that sent the
// packet which triggered Invalid, so it carries the value that endpoint is
// currently expecting to see next from its peer. If triggeredByOutgoing is true (the client's
// packet caused the Bad transition), the reverse RST travels to the
// client, so it must match what the client expects next from the server —
// ServerNextSeq. Symmetrically for the server side.
func (s *State) PeerNextSeq(triggeredByOutgoing bool) uint32 {
	if triggeredByOutgoing {
		return s.ServerNextSeq.Get()
	}
	return s.ClientNextSeq.Get()
}

// isTerminal reports whether this flow's phase is one of the two
// absorbing states, Cleared or Bad, for eviction-threshold purposes
// (spec.md §3's lifecycle rule).
func (s *State) isTerminal() bool {
	switch s.Kind() {
	case KindCleared, KindBad:
		return true
	default:
		return false
	}
}
