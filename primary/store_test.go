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

package primary

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(handler http.Handler) (*Store, *httptest.Server) {
	ts := httptest.NewServer(handler)
	store := New(ts.URL, "testkey", "testsecret", "auto", "primary")
	return store, ts
}

func TestHead(t *testing.T) {
	store, ts := testStore(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodHead, req.Method)
		require.Equal(t, "/primary/data/us/nw.csv", req.URL.Path)
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	info, err := store.Head(context.Background(), "data/us/nw.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.ContentLength)
	assert.Equal(t, "text/csv", info.ContentType)
	assert.Equal(t, `"abc123"`, info.ETag)
	assert.Equal(t, "public, max-age=3600", info.CacheControl)
	assert.Empty(t, info.RedirectLocation)
}

func TestHeadNotFound(t *testing.T) {
	store, ts := testStore(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := store.Head(context.Background(), "data/missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHeadRedirectMetadata(t *testing.T) {
	store, ts := testStore(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.Header().Set("x-amz-website-redirect-location", "https://elsewhere.example.org/us.csv")
		w.Header().Set("x-amz-meta-redirect-location", "https://elsewhere.example.org/us.csv")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	info, err := store.Head(context.Background(), "data/moved.csv")
	require.NoError(t, err)
	assert.Equal(t, "https://elsewhere.example.org/us.csv", info.RedirectLocation)
}

func TestGet(t *testing.T) {
	payload := "lat,lon\n1,2\n"
	store, ts := testStore(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodGet, req.Method)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("ETag", `"abc123"`)
		_, err := w.Write([]byte(payload))
		assert.NoError(t, err)
	}))
	defer ts.Close()

	obj, err := store.Get(context.Background(), "data/us/nw.csv")
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
	assert.Equal(t, int64(len(payload)), obj.Info.ContentLength)
	assert.Equal(t, `"abc123"`, obj.Info.ETag)
}

func TestGetNotFound(t *testing.T) {
	store, ts := testStore(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>absent</Message></Error>`))
	}))
	defer ts.Close()

	_, err := store.Get(context.Background(), "data/missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut(t *testing.T) {
	payload := "lat,lon\n1,2\n"
	var gotPath, gotRedirect, gotMetaRedirect, gotCacheControl, gotContentType string
	var gotBody []byte
	store, ts := testStore(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPut, req.Method)
		gotPath = req.URL.Path
		gotRedirect = req.Header.Get("x-amz-website-redirect-location")
		gotMetaRedirect = req.Header.Get("x-amz-meta-redirect-location")
		gotCacheControl = req.Header.Get("Cache-Control")
		gotContentType = req.Header.Get("Content-Type")
		var err error
		gotBody, err = io.ReadAll(req.Body)
		assert.NoError(t, err)
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	err := store.Put(context.Background(), "data/us/nw.csv", bytes.NewReader([]byte(payload)), PutOptions{
		ContentType:      "text/csv",
		ContentLength:    int64(len(payload)),
		CacheControl:     "public, max-age=86400",
		RedirectLocation: "https://elsewhere.example.org/us.csv",
	})
	require.NoError(t, err)

	assert.Equal(t, "/primary/data/us/nw.csv", gotPath)
	assert.Equal(t, payload, string(gotBody))
	assert.Equal(t, "text/csv", gotContentType)
	assert.Equal(t, "public, max-age=86400", gotCacheControl)
	assert.Equal(t, "https://elsewhere.example.org/us.csv", gotRedirect)
	assert.Equal(t, "https://elsewhere.example.org/us.csv", gotMetaRedirect)
}
