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

// maxWindow is the largest TCP window a peer can plausibly advertise once
// the window scale option (RFC 7323) is in play: 65535 * 2^14. A candidate
// sequence number is treated as "newer" than a stored one only if it falls
// within this forward distance, which is how this module tells a genuine
// advance from stale, wrapped-around, or out-of-order data without ever
// comparing raw sequence numbers with a plain <.
const maxWindow uint32 = 65535 * 16384

// nextSeq tracks "the next sequence number expected from a peer" per
// spec.md §3 (client_next_seq / server_next_seq): optional, and advanced
// only monotonically under wrap-aware comparison.
type nextSeq struct {
	value uint32
	valid bool
}

// Advance updates the tracked sequence number to candidate if none has been
// recorded yet, or if candidate is "newer" than the current value: the
// forward distance from the current value to candidate, computed modulo
// 2^32, is less than maxWindow. This is the wrap-aware monotonic-max update
// spec.md §4.5 requires; a plain < on raw sequence numbers is a bug the
// Rust original itself acknowledges (spec.md §9, open question (c)).
func (s *nextSeq) Advance(candidate uint32) {
	if !s.valid || candidate-s.value < maxWindow {
		s.value = candidate
		s.valid = true
	}
}

// Get returns the tracked value, and 0 if none has ever been recorded —
// matching the Rust original's unwrap_or(0) for the RST sequence number
// when a flow's counterpart direction was never observed.
func (s *nextSeq) Get() uint32 {
	return s.value
}
