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

import "github.com/Jigsaw-Code/tlsv/reassembly"

// newAwaitingClientHello creates the phase a freshly observed client SYN
// enters, with a reassembly buffer anchored at the client's first
// data-carrying sequence number.
func newAwaitingClientHello(clientInitialSeq uint32) phaseState {
	return awaitingClientHello{buf: reassembly.NewBuffer(clientInitialSeq, bufferCapacity)}
}

// newAwaitingServerHello creates the phase the state machine enters once a
// complete ClientHello has been read, with a fresh server-direction buffer
// anchored at the server's own next-send sequence number.
func newAwaitingServerHello(serverInitialSeq uint32, serverName string) phaseState {
	return awaitingServerHello{
		buf:        reassembly.NewBuffer(serverInitialSeq, bufferCapacity),
		serverName: serverName,
	}
}

// newAwaitingCertificate creates the phase the state machine enters once a
// TLS 1.2 ServerHello has been read, carrying the same buffer forward so
// that bytes already buffered past the ServerHello remain available.
func newAwaitingCertificate(buf *reassembly.Buffer, serverName string) phaseState {
	return awaitingCertificate{buf: buf, serverName: serverName}
}

// Kind identifies which phase of spec.md §4.3's transition table a flow is
// in, for logging and testing. The live data associated with a phase lives
// on the phaseState value itself (see below), not here.
type Kind int

const (
	KindPeerInitiated Kind = iota
	KindAwaitingClientHello
	KindAwaitingServerHello
	KindAwaitingCertificate
	KindCleared
	KindBad
)

func (k Kind) String() string {
	switch k {
	case KindPeerInitiated:
		return "PeerInitiated"
	case KindAwaitingClientHello:
		return "AwaitingClientHello"
	case KindAwaitingServerHello:
		return "AwaitingServerHello"
	case KindAwaitingCertificate:
		return "AwaitingCertificate"
	case KindCleared:
		return "Cleared"
	case KindBad:
		return "Bad"
	default:
		return "Unknown"
	}
}

// phaseState is the tagged-variant representation spec.md §9's design
// notes call for: each phase carries exactly the data that is live while a
// flow is in it, instead of one record with a field per phase that's valid
// in only some of them.
type phaseState interface {
	Kind() Kind
}

type peerInitiated struct{}

func (peerInitiated) Kind() Kind { return KindPeerInitiated }

// awaitingClientHello holds the client-direction reassembly buffer while
// the state machine waits for a complete ClientHello.
type awaitingClientHello struct {
	buf *reassembly.Buffer
}

func (awaitingClientHello) Kind() Kind { return KindAwaitingClientHello }

// awaitingServerHello holds the server-direction reassembly buffer and the
// server name extracted from ClientHello, carried forward so the
// Certificate phase can validate against it.
type awaitingServerHello struct {
	buf        *reassembly.Buffer
	serverName string
}

func (awaitingServerHello) Kind() Kind { return KindAwaitingServerHello }

type awaitingCertificate struct {
	buf        *reassembly.Buffer
	serverName string
}

func (awaitingCertificate) Kind() Kind { return KindAwaitingCertificate }

type cleared struct{}

func (cleared) Kind() Kind { return KindCleared }

type bad struct{}

func (bad) Kind() Kind { return KindBad }
