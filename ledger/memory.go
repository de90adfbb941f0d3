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

package ledger

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps usage records in process memory.  The TTL is purely
// garbage collection: it must be at least the limiter window so a live
// record is never evicted early, and expiry decisions still belong to the
// limiter.
type MemoryStore struct {
	cache *ttlcache.Cache[string, Record]
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, Record](retention),
		ttlcache.WithDisableTouchOnHit[string, Record](),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	item := m.cache.Get(key)
	if item == nil {
		return Record{}, false, nil
	}
	return item.Value(), true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, rec Record) error {
	m.cache.Set(key, rec, ttlcache.DefaultTTL)
	return nil
}

func (m *MemoryStore) Close() {
	m.cache.Stop()
}
