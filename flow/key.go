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
	"fmt"
	"net/netip"
)

// Key identifies a single TCP flow by its 4-tuple. It is comparable and can
// be used directly as a map key.
type Key struct {
	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16
}

// Reverse returns the key as seen from the other endpoint. The flow table
// always canonicalizes on the outgoing (client→server) key, deriving the
// incoming direction's key by reversal, per spec.md §3.
func (k Key) Reverse() Key {
	return Key{
		SrcAddr: k.DstAddr,
		DstAddr: k.SrcAddr,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", k.SrcAddr, k.SrcPort, k.DstAddr, k.DstPort)
}
