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

package edgecache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() *Cache {
	return New(time.Hour, 5*time.Minute, 1024)
}

func TestPutAndMatch(t *testing.T) {
	cache := newTestCache()
	defer cache.Close()

	key := "data.example.org/us/nw.csv"
	assert.Nil(t, cache.Match(key))

	stored := &StoredResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/csv"}},
		Body:   []byte("lat,lon\n"),
	}
	cache.Put(key, stored)

	got := cache.Match(key)
	require.NotNil(t, got)
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "text/csv", got.Header.Get("Content-Type"))
	assert.Equal(t, "lat,lon\n", string(got.Body))
}

func TestErrorsAreCached(t *testing.T) {
	cache := newTestCache()
	defer cache.Close()

	cache.Put("data.example.org/missing.csv", &StoredResponse{
		Status: http.StatusNotFound,
		Body:   []byte("Object missing.csv not found"),
	})
	got := cache.Match("data.example.org/missing.csv")
	require.NotNil(t, got, "repeated bad requests must be cheap to reject")
	assert.Equal(t, http.StatusNotFound, got.Status)
}

func TestRateLimitNeverCached(t *testing.T) {
	cache := newTestCache()
	defer cache.Close()

	cache.Put("data.example.org/foo", &StoredResponse{Status: http.StatusTooManyRequests})
	assert.Nil(t, cache.Match("data.example.org/foo"),
		"a 429 must not be cached; the client's status changes when the window rolls over")
}

func TestOversizedBodySkipped(t *testing.T) {
	cache := newTestCache()
	defer cache.Close()

	cache.Put("data.example.org/big.csv", &StoredResponse{
		Status: http.StatusOK,
		Body:   make([]byte, 2048),
	})
	assert.Nil(t, cache.Match("data.example.org/big.csv"))
}
