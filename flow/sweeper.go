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
	"context"
	"log"
	"time"
)

// SweepConfig controls how aggressively the sweeper evicts idle flows.
type SweepConfig struct {
	// Interval is how often the table is swept.
	Interval time.Duration
	// Idle is how long a non-terminal flow may go unseen before eviction.
	Idle time.Duration
	// TerminalIdle is how long a Cleared or Bad flow may go unseen before
	// eviction. It is normally much shorter than Idle: a terminal flow
	// will never again produce a useful transition, so there is no reason
	// to hold onto its state for as long as a flow still being inspected.
	TerminalIdle time.Duration
}

// Sweep runs t.Evict on cfg.Interval until ctx is done, logging how many
// flows each pass removes. It blocks and is meant to be run in its own
// goroutine.
func Sweep(ctx context.Context, t *Table, cfg SweepConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := t.Evict(now, cfg.Idle, cfg.TerminalIdle); n > 0 {
				log.Printf("flow: evicted %d idle flow(s), %d remaining", n, t.Len())
			}
		}
	}
}
