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

// Package limiter enforces a soft per-fingerprint byte quota over a sliding
// window.  It is an abuse detector, not an accounting system: updates are
// last-writer-wins over the ledger, so concurrent transfers from one
// fingerprint may undercount.  Check is only consulted before paying for an
// origin fetch; primary-store hits are never limited.
package limiter

import (
	"context"
	"time"

	"github.com/alecthomas/units"
	"github.com/pkg/errors"

	"github.com/openaddresses/lazymigrate/ledger"
	"github.com/openaddresses/lazymigrate/param"
)

const (
	// DefaultLimit is the per-window byte quota (5 GiB).
	DefaultLimit = int64(5 * 1024 * 1024 * 1024)

	// DefaultWindow is the sliding-window length.
	DefaultWindow = 24 * time.Hour
)

type Limiter struct {
	store  ledger.Store
	limit  int64
	window time.Duration

	// Injectable for tests
	now func() time.Time
}

func New(store ledger.Store, limit int64, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// FromConfig builds a limiter from the Limiter.Limit ("5GiB" style) and
// Limiter.Window parameters.
func FromConfig(store ledger.Store) (*Limiter, error) {
	limitStr := param.Limiter_Limit.GetString()
	limit, err := units.ParseStrictBytes(limitStr)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse Limiter.Limit value %s", limitStr)
	}
	return New(store, limit, param.Limiter_Window.GetDuration()), nil
}

func (l *Limiter) expired(rec ledger.Record) bool {
	return l.now().Sub(rec.WindowStart()) > l.window
}

// Check reports whether the fingerprint has exhausted its quota.  Absent or
// expired records are not exceeded; a stale record simply reads as zero
// usage until the next Track overwrites it.
func (l *Limiter) Check(ctx context.Context, fp string) (bool, error) {
	rec, found, err := l.store.Get(ctx, fp)
	if err != nil {
		return false, errors.Wrap(err, "usage check failed")
	}
	if !found || l.expired(rec) {
		return false, nil
	}
	return rec.Usage >= l.limit, nil
}

// Track adds n bytes to the fingerprint's window, resetting the window when
// the previous record has expired.  The write is unconditional, no
// compare-and-swap, so concurrent trackers can lose updates.  Do not
// tighten this; approximate counting is part of the limiter's contract.
func (l *Limiter) Track(ctx context.Context, fp string, n int64) error {
	rec, found, err := l.store.Get(ctx, fp)
	if err != nil {
		return errors.Wrap(err, "usage read failed")
	}
	newUsage := n
	if found && !l.expired(rec) {
		newUsage = rec.Usage + n
	}
	err = l.store.Put(ctx, fp, ledger.Record{
		Usage:     newUsage,
		Timestamp: l.now().UnixMilli(),
	})
	return errors.Wrap(err, "usage write failed")
}
