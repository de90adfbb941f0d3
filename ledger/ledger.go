/***************************************************************
 *
 * Copyright (C) 2025, OpenAddresses
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

// Package ledger stores per-fingerprint usage records.  The store has no
// native notion of expiry; the limiter computes window expiry from the
// record's timestamp on every read.  Updates are plain get-then-put;
// concurrent writers for one fingerprint can lose updates, and the
// limiter tolerates that.
package ledger

import (
	"context"
	"time"
)

// Record is the stored usage state for one client fingerprint.  Timestamp
// is the window start in Unix milliseconds, matching the JSON wire form
// {"usage": n, "timestamp": n}.
type Record struct {
	Usage     int64 `json:"usage"`
	Timestamp int64 `json:"timestamp"`
}

// WindowStart returns the record's window start as a time.Time.
func (r Record) WindowStart() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Store is the narrow contract the limiter consumes.  Get reports
// found=false for absent keys; stale records are the caller's problem.
type Store interface {
	Get(ctx context.Context, key string) (rec Record, found bool, err error)
	Put(ctx context.Context, key string, rec Record) error
}
