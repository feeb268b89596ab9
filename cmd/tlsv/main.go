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

// Command tlsv is a transparent on-path TLS validator: it watches every
// TCP flow a given client makes, validates the server's certificate
// chain as soon as it can see it, and forges RSTs to tear down any flow
// whose chain doesn't check out, all without ever terminating TLS
// itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/netip"
	"os"
	"os/signal"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/Jigsaw-Code/tlsv/capture"
	"github.com/Jigsaw-Code/tlsv/certverify"
	"github.com/Jigsaw-Code/tlsv/flow"
)

func main() {
	ifaceFlag := flag.String("iface", "", "Network interface to capture on (default: first active, non-loopback interface)")
	idleFlag := flag.Duration("idle", 5*time.Minute, "How long a flow still being inspected may go unseen before eviction")
	terminalIdleFlag := flag.Duration("terminal-idle", 30*time.Second, "How long a Cleared or Bad flow may go unseen before eviction")
	sweepFlag := flag.Duration("sweep", 30*time.Second, "How often the flow table is swept for idle flows")
	verboseFlag := flag.Bool("v", false, "Print a startup notice that verbose mode is on (flow transitions are not logged)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	clientAddr, err := netip.ParseAddr(flag.Arg(0))
	if err != nil {
		log.Fatalf("tlsv: invalid client IP %q: %v", flag.Arg(0), err)
	}

	iface := *ifaceFlag
	if iface == "" {
		iface, err = defaultInterface()
		if err != nil {
			log.Fatalf("tlsv: could not select a default interface: %v", err)
		}
	}

	verifier, err := certverify.NewSystemVerifier()
	if err != nil {
		log.Fatalf("tlsv: could not load the system trust store: %v", err)
	}
	table := flow.NewTable(verifier)

	dispatcher, err := capture.Open(iface, clientAddr, table)
	if err != nil {
		log.Fatalf("tlsv: could not start capture on %s: %v", iface, err)
	}
	defer dispatcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go flow.Sweep(ctx, table, flow.SweepConfig{
		Interval:     *sweepFlag,
		Idle:         *idleFlag,
		TerminalIdle: *terminalIdleFlag,
	})

	log.Printf("tlsv: validating TLS for %s on %s", clientAddr, iface)
	if *verboseFlag {
		log.Printf("tlsv: verbose logging enabled")
	}

	errc := make(chan error, 1)
	go func() { errc <- dispatcher.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("tlsv: capture stopped: %v", err)
		}
	case <-sig:
		log.Printf("tlsv: shutting down")
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <client_ip>\n", os.Args[0])
	flag.PrintDefaults()
}

// defaultInterface picks the first interface that is up, not a loopback,
// and has at least one address, matching a typical middlebox deployment
// with a single monitored link.
func defaultInterface() (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", err
	}
	for _, dev := range devices {
		if len(dev.Addresses) == 0 {
			continue
		}
		if dev.Flags&pcap.PCAP_IF_LOOPBACK != 0 {
			continue
		}
		if dev.Flags&pcap.PCAP_IF_UP == 0 {
			continue
		}
		return dev.Name, nil
	}
	return "", fmt.Errorf("no suitable network interface found")
}
