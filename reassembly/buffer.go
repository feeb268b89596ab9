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
Package reassembly implements a bounded, in-order TCP reassembly buffer for
one direction of a flow. It tolerates loss, duplication, reordering and
32-bit sequence-number wrap, and exposes only the contiguous byte prefix that
has actually been received.
*/
package reassembly

import "sort"

// segment is a received but not-yet-contiguous byte range, expressed as an
// offset from the buffer's initial sequence number rather than as a raw
// sequence number.
type segment struct {
	start int
	len   int
}

// Buffer is a sliding-window TCP reassembly buffer keyed on an initial
// sequence number. It holds a contiguous byte prefix plus a set of
// out-of-order segments not yet contiguous with that prefix.
//
// Buffer is not safe for concurrent use; callers must serialize access the
// same way the rest of this module serializes per-flow state.
type Buffer struct {
	initialSeq uint32
	capacity   int

	buf      []byte
	validLen int
	segments []segment
}

// NewBuffer creates an empty buffer anchored at initialSeq that can hold up
// to capacity bytes measured from that sequence number.
func NewBuffer(initialSeq uint32, capacity int) *Buffer {
	return &Buffer{
		initialSeq: initialSeq,
		capacity:   capacity,
	}
}

// offset computes seq-initialSeq as an unsigned 32-bit difference, which is
// exactly the in-window test spec.md §4.1 requires: it is a valid in-window
// offset iff the result is < capacity, regardless of whether seq is "before"
// or "after" initialSeq in signed terms.
func (b *Buffer) offset(seq uint32) int {
	return int(seq - b.initialSeq)
}

// Add inserts the bytes of payload received at sequence number seq. Bytes
// that fall outside the window [initialSeq, initialSeq+capacity) are dropped
// or truncated to fit; overlapping existing segments are superseded by the
// newly added one for the overlapping range.
func (b *Buffer) Add(seq uint32, payload []byte) {
	if len(payload) == 0 {
		return
	}
	offset := b.offset(seq)
	if offset < 0 || offset >= b.capacity {
		return
	}

	end := offset + len(payload)
	if end > b.capacity {
		payload = payload[:b.capacity-offset]
		end = b.capacity
	}

	var kept []segment
	for _, s := range b.segments {
		if end <= s.start || s.start+s.len <= offset {
			kept = append(kept, s)
			continue
		}
		// Only the overlap is superseded: keep whatever part of s lies
		// outside the new range.
		if s.start < offset {
			kept = append(kept, segment{start: s.start, len: offset - s.start})
		}
		if s.start+s.len > end {
			kept = append(kept, segment{start: end, len: s.start + s.len - end})
		}
	}
	b.segments = kept

	if end > len(b.buf) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[offset:end], payload)
	b.segments = append(b.segments, segment{start: offset, len: len(payload)})

	b.coalescePrefix()
}

// coalescePrefix repeatedly absorbs any segment contiguous with the current
// valid prefix, then drops every segment that the grown prefix now
// subsumes (start <= validLen).
func (b *Buffer) coalescePrefix() {
	for {
		advanced := false
		for _, s := range b.segments {
			if s.start == b.validLen {
				b.validLen += s.len
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}

	kept := b.segments[:0]
	for _, s := range b.segments {
		if s.start > b.validLen {
			kept = append(kept, s)
		}
	}
	b.segments = kept
}

// Data returns the contiguous prefix of bytes received so far. The returned
// slice aliases the buffer's internal storage and must not be retained
// across a subsequent Add or Drain call.
func (b *Buffer) Data() []byte {
	return b.buf[:b.validLen]
}

// Len returns the number of contiguous bytes currently available from
// Data().
func (b *Buffer) Len() int {
	return b.validLen
}

// Drain advances the buffer's initial sequence number by n, discarding the
// first n bytes of buffered data. n may exceed the currently valid prefix
// length, in which case the buffer skips forward past data it has not yet
// received; any segment that arrives in the now-skipped range will simply
// be dropped by a future Add.
func (b *Buffer) Drain(n int) {
	b.initialSeq += uint32(n)

	if n >= len(b.buf) {
		b.buf = b.buf[:0]
	} else {
		b.buf = append(b.buf[:0], b.buf[n:]...)
	}

	if b.validLen > n {
		b.validLen -= n
	} else {
		b.validLen = 0
	}

	kept := b.segments[:0]
	for _, s := range b.segments {
		if s.start >= n {
			kept = append(kept, segment{start: s.start - n, len: s.len})
		}
	}
	b.segments = kept
	sort.Slice(b.segments, func(i, j int) bool { return b.segments[i].start < b.segments[j].start })

	b.coalescePrefix()
}
