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

package origin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher(endpoint string, timeout time.Duration) *Fetcher {
	return NewFetcher("AKIATEST", "secret", "us-east-1", "s3", endpoint, timeout)
}

func TestFetchSignsRequests(t *testing.T) {
	var gotAuth, gotDate, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		gotDate = req.Header.Get("X-Amz-Date")
		gotPath = req.URL.Path
		w.Header().Set("Content-Type", "text/csv")
		_, err := w.Write([]byte("lat,lon\n"))
		assert.NoError(t, err)
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 5*time.Second)
	result, err := fetcher.Fetch(context.Background(), "data", "us/nw/statewide.csv")
	require.NoError(t, err)
	defer result.Close()

	assert.True(t, strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKIATEST/"),
		"expected a SigV4 Authorization header, got %q", gotAuth)
	assert.Contains(t, gotAuth, "us-east-1/s3/aws4_request")
	assert.NotEmpty(t, gotDate)
	assert.Equal(t, "/data/us/nw/statewide.csv", gotPath, "origin requests are path-style")

	body, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Equal(t, "lat,lon\n", string(body))
	assert.Equal(t, "text/csv", result.ContentType())
}

func TestFetchNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 5*time.Second)
	_, err := fetcher.Fetch(context.Background(), "data", "missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 50*time.Millisecond)
	_, err := fetcher.Fetch(context.Background(), "data", "slow.csv")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrNotFound, "timeouts must stay distinct from not-found")
}

func TestFetchSlowBodyOutlivesTimeout(t *testing.T) {
	payload := strings.Repeat("x", 512)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write([]byte(payload[:256]))
		w.(http.Flusher).Flush()
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(payload[256:]))
	}))
	defer ts.Close()

	// The deadline covers only the wait for headers; a transfer that takes
	// longer than the timeout end-to-end must still complete.
	fetcher := testFetcher(ts.URL, 100*time.Millisecond)
	result, err := fetcher.Fetch(context.Background(), "data", "large.csv")
	require.NoError(t, err)

	body, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	require.NoError(t, result.Close())
	assert.Equal(t, payload, string(body))
}

func TestFetchUnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 5*time.Second)
	_, err := fetcher.Fetch(context.Background(), "data", "denied.csv")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRedirectLocation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Amz-Website-Redirect-Location", "https://elsewhere.example.org/us/nw.csv")
		_, err := w.Write([]byte{})
		assert.NoError(t, err)
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 5*time.Second)
	result, err := fetcher.Fetch(context.Background(), "data", "moved.csv")
	require.NoError(t, err)
	defer result.Close()
	assert.Equal(t, "https://elsewhere.example.org/us/nw.csv", result.RedirectLocation())
}

func TestTeeKnownLength(t *testing.T) {
	payload := strings.Repeat("lat,lon\n", 4096)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, err := w.Write([]byte(payload))
		assert.NoError(t, err)
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 5*time.Second)
	result, err := fetcher.Fetch(context.Background(), "data", "big.csv")
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), result.ContentLength)

	clientSide, copySide, err := result.Tee()
	require.NoError(t, err)

	// The copy side must be drained concurrently, as the write-back task does.
	var wg sync.WaitGroup
	var copied []byte
	var copyErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		copied, copyErr = io.ReadAll(copySide)
	}()

	streamed, err := io.ReadAll(clientSide)
	require.NoError(t, err)
	require.NoError(t, clientSide.Close())
	wg.Wait()

	require.NoError(t, copyErr)
	assert.Equal(t, payload, string(streamed))
	assert.Equal(t, payload, string(copied))
}

func TestTeeClientAbortPoisonsCopySide(t *testing.T) {
	payload := strings.Repeat("x", 1<<20)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write([]byte(payload))
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 5*time.Second)
	result, err := fetcher.Fetch(context.Background(), "data", "aborted.csv")
	require.NoError(t, err)

	clientSide, copySide, err := result.Tee()
	require.NoError(t, err)

	var wg sync.WaitGroup
	var copyErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, copyErr = io.ReadAll(copySide)
	}()

	// Read a fragment, then drop the connection mid-stream
	buf := make([]byte, 1024)
	_, err = io.ReadFull(clientSide, buf)
	require.NoError(t, err)
	require.NoError(t, clientSide.Close())
	wg.Wait()

	assert.Error(t, copyErr, "a truncated transfer must not look complete to the write-back")
}

func TestTeeUnknownLengthBuffers(t *testing.T) {
	payload := "lat,lon\n1,2\n"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		flusher := w.(http.Flusher)
		_, err := w.Write([]byte(payload[:4]))
		assert.NoError(t, err)
		flusher.Flush() // force chunked transfer, no Content-Length
		_, err = w.Write([]byte(payload[4:]))
		assert.NoError(t, err)
	}))
	defer ts.Close()

	fetcher := testFetcher(ts.URL, 5*time.Second)
	result, err := fetcher.Fetch(context.Background(), "data", "chunked.csv")
	require.NoError(t, err)
	require.Equal(t, int64(-1), result.ContentLength)

	clientSide, copySide, err := result.Tee()
	require.NoError(t, err)

	// Buffered duplication: both sides are independently readable, in any order
	streamed, err := io.ReadAll(clientSide)
	require.NoError(t, err)
	copied, err := io.ReadAll(copySide)
	require.NoError(t, err)
	assert.Equal(t, payload, string(streamed))
	assert.Equal(t, payload, string(copied))
}
