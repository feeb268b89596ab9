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

package tlsrecord

import "errors"

// Portable analogs of the outcomes a handshake decode can have.
//
// Errors returned from this package may be tested against these with
// [errors.Is].

// ErrNeedMore is returned when the buffered data is a valid prefix of a TLS
// record or handshake message, but not yet long enough to decode it fully.
// Callers should wait for more bytes and retry; this is not a failure.
var ErrNeedMore = errors.New("need more bytes to decode a complete record")

// ErrNotTLS is returned when the buffered data cannot be a TLS 1.x
// handshake record, or decodes to a handshake message of an unexpected
// type. Callers should normally treat this as "this flow is not one we can
// validate" rather than as an error to surface to an operator.
var ErrNotTLS = errors.New("not a recognizable TLS handshake record")
