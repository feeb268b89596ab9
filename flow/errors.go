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

import "errors"

// Portable analogs of some common errors.
//
// Errors returned from this package may be tested against these errors
// with [errors.Is].

// ErrUnrecognizedFlow is returned when a non-SYN packet arrives for a
// 4-tuple this table has no record of. Per spec.md §7, this is logged and
// the packet is forwarded unchanged; no state is created.
var ErrUnrecognizedFlow = errors.New("unrecognized flow for non-SYN packet")
