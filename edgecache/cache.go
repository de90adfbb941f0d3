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

// Package edgecache holds recently produced responses keyed by normalized
// request URL, so repeated requests -- including repeated bad requests --
// are answered without re-running the pipeline.
package edgecache

import (
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/openaddresses/lazymigrate/param"
)

// StoredResponse is a complete, replayable response.
type StoredResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

type Cache struct {
	cache   *ttlcache.Cache[string, *StoredResponse]
	ttl     time.Duration
	errTTL  time.Duration
	maxBody int64
}

// New builds a cache with separate TTLs for success/redirect responses and
// error responses.  Bodies larger than maxBody are simply not cached; the
// cache must never buffer a multi-gigabyte transfer.
func New(ttl, errTTL time.Duration, maxBody int64) *Cache {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *StoredResponse](),
	)
	go cache.Start()
	return &Cache{
		cache:   cache,
		ttl:     ttl,
		errTTL:  errTTL,
		maxBody: maxBody,
	}
}

// FromConfig builds the cache from the EdgeCache.* parameters.
func FromConfig() *Cache {
	return New(
		param.EdgeCache_TTL.GetDuration(),
		param.EdgeCache_ErrorTTL.GetDuration(),
		param.EdgeCache_MaxBodyBytes.GetInt64(),
	)
}

// Match returns the stored response for key, or nil.
func (c *Cache) Match(key string) *StoredResponse {
	item := c.cache.Get(key)
	if item == nil {
		return nil
	}
	return item.Value()
}

// Put stores a terminal response.  Rate-limit responses are never cached,
// so a client's status can change as soon as its window rolls over;
// oversized bodies are skipped.
func (c *Cache) Put(key string, resp *StoredResponse) {
	if resp.Status == http.StatusTooManyRequests {
		return
	}
	if int64(len(resp.Body)) > c.maxBody {
		return
	}
	ttl := c.ttl
	if resp.Status >= 400 {
		ttl = c.errTTL
	}
	c.cache.Set(key, resp, ttl)
}

func (c *Cache) Close() {
	c.cache.Stop()
}
