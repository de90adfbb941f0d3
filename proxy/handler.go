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

// Package proxy is the request pipeline: route the host to a bucket,
// sanitize the path, serve from the primary store when the object has
// migrated, and otherwise stream it from the origin while a detached task
// writes a copy back to the primary store.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openaddresses/lazymigrate/buckets"
	"github.com/openaddresses/lazymigrate/config"
	"github.com/openaddresses/lazymigrate/edgecache"
	"github.com/openaddresses/lazymigrate/keys"
	"github.com/openaddresses/lazymigrate/metrics"
	"github.com/openaddresses/lazymigrate/origin"
	"github.com/openaddresses/lazymigrate/primary"
)

// PrimaryStore is the narrow surface of the primary object store the
// pipeline consumes.
type PrimaryStore interface {
	Head(ctx context.Context, key string) (*primary.ObjectInfo, error)
	Get(ctx context.Context, key string) (*primary.Object, error)
	Put(ctx context.Context, key string, body io.Reader, opts primary.PutOptions) error
}

// OriginFetcher issues the fallback fetch against the origin store.
type OriginFetcher interface {
	Fetch(ctx context.Context, bucket, key string) (*origin.Result, error)
	Timeout() time.Duration
}

// UsageLimiter is the sliding-window abuse limiter.
type UsageLimiter interface {
	Check(ctx context.Context, fp string) (bool, error)
	Track(ctx context.Context, fp string, n int64) error
}

// Fingerprinter derives the abuse-detection identity of a request.
type Fingerprinter interface {
	Fingerprint(req *http.Request, clientIP string) string
}

type Handler struct {
	table   *buckets.Table
	cache   *edgecache.Cache
	primary PrimaryStore
	origin  OriginFetcher
	limiter UsageLimiter
	fp      Fingerprinter

	// Write-backs run on the lifecycle errgroup with the lifecycle context,
	// never the request's; they must outlive the response.
	baseCtx context.Context
	egrp    *errgroup.Group

	// Bodies up to this size are buffered so the response can also be
	// stored in the edge cache; larger objects stream straight through.
	cacheableBody int64
}

// NewHandler wires the pipeline.  ctx must carry the lifecycle errgroup
// under config.EgrpKey (as set up by cmd.Execute or test_utils.TestContext).
func NewHandler(ctx context.Context, table *buckets.Table, cache *edgecache.Cache,
	primaryStore PrimaryStore, originFetcher OriginFetcher, usageLimiter UsageLimiter,
	fingerprinter Fingerprinter, cacheableBody int64) *Handler {
	return &Handler{
		table:         table,
		cache:         cache,
		primary:       primaryStore,
		origin:        originFetcher,
		limiter:       usageLimiter,
		fp:            fingerprinter,
		baseCtx:       ctx,
		egrp:          config.GetErrGroup(ctx),
		cacheableBody: cacheableBody,
	}
}

func clientAddress(ginCtx *gin.Context) string {
	if addr := ginCtx.Request.Header.Get("X-Real-Ip"); addr != "" {
		return addr
	}
	return ginCtx.RemoteIP()
}

func cacheKey(ginCtx *gin.Context) string {
	return ginCtx.Request.Host + ginCtx.Request.URL.RequestURI()
}

// respond stores the terminal response in the edge cache (the cache itself
// refuses 429s) and writes it to the client.
func (h *Handler) respond(ginCtx *gin.Context, key string, resp *edgecache.StoredResponse) {
	h.cache.Put(key, resp)
	h.replay(ginCtx, resp)
}

func (h *Handler) replay(ginCtx *gin.Context, resp *edgecache.StoredResponse) {
	header := ginCtx.Writer.Header()
	for name, vals := range resp.Header {
		header[name] = vals
	}
	ginCtx.Status(resp.Status)
	if len(resp.Body) > 0 {
		if _, err := ginCtx.Writer.Write(resp.Body); err != nil {
			log.Debugln("Failed to write response body:", err)
		}
	}
}

func (h *Handler) respondError(ginCtx *gin.Context, key string, status int, msg string) {
	h.respond(ginCtx, key, &edgecache.StoredResponse{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte(msg),
	})
}

func (h *Handler) respondRedirect(ginCtx *gin.Context, key, target string) {
	h.respond(ginCtx, key, &edgecache.StoredResponse{
		Status: http.StatusFound,
		Header: http.Header{"Location": []string{target}},
	})
}

// ServeObject runs the full pipeline for one request.
func (h *Handler) ServeObject(ginCtx *gin.Context) {
	key := cacheKey(ginCtx)

	clientIP := clientAddress(ginCtx)
	if clientIP == "" {
		h.respondError(ginCtx, key, http.StatusBadRequest, "Missing client address")
		return
	}

	// The cache key carries no method, so non-GETs must neither read nor
	// populate the cache; they are answered directly.
	if ginCtx.Request.Method != http.MethodGet {
		h.replay(ginCtx, &edgecache.StoredResponse{
			Status: http.StatusMethodNotAllowed,
			Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
			Body:   []byte("Only GET requests are supported"),
		})
		return
	}

	if stored := h.cache.Match(key); stored != nil {
		metrics.EdgeCacheHits.Inc()
		h.replay(ginCtx, stored)
		return
	}

	rawPath := ginCtx.Request.URL.Path
	sanitized, err := keys.Clean(rawPath)
	if err != nil {
		h.respondError(ginCtx, key, http.StatusBadRequest, "Invalid object path")
		return
	}

	host := ginCtx.Request.Host
	if h.table.RequiresReferer(host, sanitized) && ginCtx.Request.Header.Get("Referer") == "" {
		h.respondError(ginCtx, key, http.StatusForbidden, "A referer is required for this resource")
		return
	}

	cfg, err := h.table.Lookup(host)
	if err != nil {
		h.respondError(ginCtx, key, http.StatusNotFound, fmt.Sprintf("Unknown host %s", host))
		return
	}

	objKey, err := cfg.ResolveKey(sanitized)
	if err != nil {
		h.respondError(ginCtx, key, http.StatusBadRequest, "Invalid object path")
		return
	}

	storageKey := cfg.StorageKey(objKey)
	reqCtx := ginCtx.Request.Context()

	info, err := h.primary.Head(reqCtx, storageKey)
	switch {
	case err == nil:
		metrics.PrimaryHits.Inc()
		h.servePrimary(ginCtx, key, cfg, storageKey, info)
	case errors.Is(err, primary.ErrNotFound):
		metrics.PrimaryMisses.Inc()
		h.serveOrigin(ginCtx, key, cfg, objKey, storageKey, clientIP)
	default:
		log.Errorln("Primary store lookup failed for", storageKey, ":", err)
		h.respondError(ginCtx, key, http.StatusInternalServerError, "Failed to look up object")
	}
}

// servePrimary is the fast path once an object has migrated.
func (h *Handler) servePrimary(ginCtx *gin.Context, key string, cfg buckets.Config, storageKey string, info *primary.ObjectInfo) {
	if info.RedirectLocation != "" {
		h.respondRedirect(ginCtx, key, info.RedirectLocation)
		return
	}

	obj, err := h.primary.Get(ginCtx.Request.Context(), storageKey)
	if err != nil {
		log.Errorln("Primary store get failed for", storageKey, ":", err)
		h.respondError(ginCtx, key, http.StatusInternalServerError, "Failed to fetch object")
		return
	}

	header := makeObjectHeader(obj.Info.ContentType, obj.Info.ETag, cacheControlFor(cfg, obj.Info.CacheControl))
	h.serveBody(ginCtx, key, header, obj.Body, obj.Info.ContentLength)
}

// serveOrigin is the miss path: enforce the quota, fetch from the origin,
// and schedule the write-back that migrates the object.
func (h *Handler) serveOrigin(ginCtx *gin.Context, key string, cfg buckets.Config, objKey, storageKey, clientIP string) {
	reqCtx := ginCtx.Request.Context()

	fp := h.fp.Fingerprint(ginCtx.Request, clientIP)
	exceeded, err := h.limiter.Check(reqCtx, fp)
	if err != nil {
		// The limiter degrades open: a ledger outage must not stop serving.
		log.Warningln("Usage check failed for", fp, ":", err)
	} else if exceeded {
		metrics.RateLimited.Inc()
		h.respondError(ginCtx, key, http.StatusTooManyRequests, "Usage quota exceeded; try again later")
		return
	}

	// The fetch rides the lifecycle context, not the request's: the body
	// may still be draining into a detached write-back after the response
	// to the client has completed, and net/http cancels the request context
	// the moment the handler returns.
	result, err := h.origin.Fetch(h.baseCtx, cfg.BucketName, objKey)
	switch {
	case errors.Is(err, origin.ErrNotFound):
		metrics.OriginFetches.WithLabelValues("not_found").Inc()
		h.respondError(ginCtx, key, http.StatusNotFound, fmt.Sprintf("Object %s not found", objKey))
		return
	case errors.Is(err, origin.ErrTimeout):
		metrics.OriginFetches.WithLabelValues("timeout").Inc()
		h.respondError(ginCtx, key, http.StatusGatewayTimeout,
			fmt.Sprintf("Upstream S3 fetch timed out after %s", h.origin.Timeout()))
		return
	case err != nil:
		metrics.OriginFetches.WithLabelValues("error").Inc()
		log.Errorln("Origin fetch failed for", objKey, ":", err)
		h.respondError(ginCtx, key, http.StatusInternalServerError, "Failed to fetch object from origin")
		return
	}
	metrics.OriginFetches.WithLabelValues("success").Inc()

	if target := result.RedirectLocation(); target != "" {
		// The stored object is itself a redirect; persist it with its
		// metadata and send the client on without ever streaming the body.
		h.scheduleWriteBack(storageKey, result.Body, primary.PutOptions{
			ContentType:      result.ContentType(),
			ContentLength:    result.ContentLength,
			RedirectLocation: target,
		})
		h.respondRedirect(ginCtx, key, target)
		return
	}

	if result.ContentLength >= 0 {
		if err := h.limiter.Track(reqCtx, fp, result.ContentLength); err != nil {
			log.Warningln("Usage tracking failed for", fp, ":", err)
		}
	}
	// When the length is unknown, usage is not tracked for the transfer.

	clientSide, copySide, err := result.Tee()
	if err != nil {
		log.Errorln("Failed to duplicate origin body for", objKey, ":", err)
		h.respondError(ginCtx, key, http.StatusInternalServerError, "Failed to fetch object from origin")
		return
	}

	h.scheduleWriteBack(storageKey, copySide, primary.PutOptions{
		ContentType:   result.ContentType(),
		ContentLength: result.ContentLength,
		CacheControl:  cfg.CacheControl,
	})

	header := makeObjectHeader(result.ContentType(), "", cacheControlFor(cfg, result.Header.Get("Cache-Control")))
	h.serveBody(ginCtx, key, header, clientSide, result.ContentLength)
}

// serveBody streams the object to the client, buffering small bodies so the
// response can also land in the edge cache.
func (h *Handler) serveBody(ginCtx *gin.Context, key string, header http.Header, body io.ReadCloser, length int64) {
	if length >= 0 && length <= h.cacheableBody {
		buf, err := io.ReadAll(body)
		closeErr := body.Close()
		if err != nil || closeErr != nil {
			log.Errorln("Failed to read object body:", err, closeErr)
			h.respondError(ginCtx, key, http.StatusInternalServerError, "Failed to read object body")
			return
		}
		h.respond(ginCtx, key, &edgecache.StoredResponse{
			Status: http.StatusOK,
			Header: header,
			Body:   buf,
		})
		return
	}

	defer body.Close()
	out := ginCtx.Writer.Header()
	for name, vals := range header {
		out[name] = vals
	}
	if length >= 0 {
		ginCtx.Writer.Header().Set("Content-Length", fmt.Sprintf("%d", length))
	}
	ginCtx.Status(http.StatusOK)
	if _, err := io.Copy(ginCtx.Writer, body); err != nil {
		log.Debugln("Client transfer interrupted:", err)
	}
}

func makeObjectHeader(contentType, etag, cacheControl string) http.Header {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	if etag != "" {
		header.Set("ETag", etag)
	}
	if cacheControl != "" {
		header.Set("Cache-Control", cacheControl)
	}
	return header
}

// cacheControlFor overlays the bucket's configured cache policy on top of
// whatever the store reported.
func cacheControlFor(cfg buckets.Config, stored string) string {
	if cfg.CacheControl != "" {
		return cfg.CacheControl
	}
	return stored
}
