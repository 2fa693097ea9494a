// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tasks runs tracked background work.
//
// A Spawner launches functions as tracked tasks. Every task carries a
// UUIDv7 id, a lifecycle status, and timestamps; terminal states feed
// counters. Tasks can be joined, cancelled, bounded by a per-spawn
// timeout, and retried. A semaphore admission gate caps how many run at
// once; tasks over the cap wait in the pending state.
//
//	sp := tasks.NewSpawner(tasks.WithMaxConcurrent(8))
//
//	h, err := sp.Spawn("index-rebuild", rebuild, tasks.WithTimeout(time.Minute))
//	if err != nil {
//		return err
//	}
//	if err := h.Join(ctx); err != nil {
//		log.Warn("rebuild failed", "error", err)
//	}
//
// A Scheduler fires recurring jobs from six-field cron expressions
// (second, minute, hour, day of month, month, day of week). The loop
// ticks once per second and only decides when a job is due; the callback
// itself runs through the Spawner, so a slow job delays nothing but
// itself.
//
//	sched := tasks.NewScheduler(sp)
//	id, err := sched.Register("history-rollup", "0 0 * * * *", rollup)
//	if err != nil {
//		return err
//	}
//	if err := sched.Start(); err != nil {
//		return err
//	}
//	defer sched.Stop()
package tasks
