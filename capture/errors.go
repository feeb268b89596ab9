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

package capture

import "errors"

// errNotIPTCP is returned when a captured packet, despite passing the BPF
// filter, does not decode cleanly to an IPv4/IPv6 layer plus a TCP layer.
var errNotIPTCP = errors.New("capture: packet is not a decodable IP/TCP segment")

// errNotClientTraffic is returned when neither endpoint of a packet
// matches the configured client address.
var errNotClientTraffic = errors.New("capture: packet does not involve the configured client address")
