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

// Package origin issues the fallback fetch against the authoritative origin
// store when an object has not yet migrated to the primary store.  Requests
// are SigV4-signed GETs against the origin's path-style regional endpoint,
// bounded by a hard timeout.
package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/pkg/errors"

	"github.com/openaddresses/lazymigrate/param"
)

// SHA-256 of the empty payload; GETs carry no body.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

const redirectLocationHeader = "X-Amz-Website-Redirect-Location"

var (
	// ErrNotFound reports an origin 404.  Under lazy migration this is an
	// expected outcome, not a fault.
	ErrNotFound = errors.New("object not found at origin")

	// ErrTimeout reports the fetch exceeding its deadline; surfaced to the
	// client as a 504, distinct from ErrNotFound.
	ErrTimeout = errors.New("origin fetch timed out")
)

type Fetcher struct {
	client   *http.Client
	signer   *v4.Signer
	creds    aws.Credentials
	endpoint string
	region   string
	service  string
	timeout  time.Duration
}

// NewFetcher builds a fetcher for the given origin endpoint.  An empty
// endpoint selects the standard regional S3 endpoint.
func NewFetcher(accessKey, secretKey, region, service, endpoint string, timeout time.Duration) *Fetcher {
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.%s.amazonaws.com", service, region)
	}
	return &Fetcher{
		client:   &http.Client{},
		signer:   v4.NewSigner(),
		creds:    aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		region:   region,
		service:  service,
		timeout:  timeout,
	}
}

// FromConfig builds a fetcher from the Origin.* parameters.
func FromConfig() (*Fetcher, error) {
	accessKey := param.Origin_AccessKey.GetString()
	secretKey := param.Origin_SecretKey.GetString()
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("Origin.AccessKey and Origin.SecretKey must both be configured")
	}
	return NewFetcher(
		accessKey,
		secretKey,
		param.Origin_Region.GetString(),
		param.Origin_Service.GetString(),
		param.Origin_Endpoint.GetString(),
		param.Origin_FetchTimeout.GetDuration(),
	), nil
}

// Timeout returns the configured fetch deadline.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// Result is a successful origin response.  The caller owns the body and
// must either consume it (possibly through Tee) or Close it.
type Result struct {
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// fetchBody releases the fetch context when the body is closed.
type fetchBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *fetchBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Fetch GETs bucket/key from the origin.  A 404 maps to ErrNotFound and a
// deadline hit maps to ErrTimeout; any other failure (signing included) is
// an unclassified error for the caller to surface as a server fault.
//
// The timeout covers only the wait for response headers.  Once the origin
// starts streaming, the body has no deadline of its own -- a multi-gigabyte
// transfer takes however long it takes, bounded only by ctx.  Callers that
// hand the body to a detached task must therefore pass the lifecycle
// context, not a per-request one.
func (f *Fetcher) Fetch(ctx context.Context, bucket, key string) (*Result, error) {
	fetchCtx, cancel := context.WithCancel(ctx)

	reqURL := fmt.Sprintf("%s/%s/%s", f.endpoint, bucket, key)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "unable to construct origin request for %s", reqURL)
	}

	if err := f.signer.SignHTTP(fetchCtx, f.creds, req, emptyPayloadHash, f.service, f.region, time.Now().UTC()); err != nil {
		cancel()
		return nil, errors.Wrap(err, "unable to sign origin request")
	}

	headerTimer := time.AfterFunc(f.timeout, cancel)
	resp, err := f.client.Do(req)
	// Stop returns false when the timer already fired and canceled the fetch.
	timedOut := !headerTimer.Stop()
	if err != nil {
		cancel()
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "after %s", f.timeout)
		}
		return nil, errors.Wrapf(err, "origin fetch failed for %s", reqURL)
	}
	if timedOut {
		resp.Body.Close()
		cancel()
		return nil, errors.Wrapf(ErrTimeout, "after %s", f.timeout)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		cancel()
		return nil, errors.Wrap(ErrNotFound, key)
	case resp.StatusCode >= 300:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, errors.Errorf("unexpected origin status %d for %s", resp.StatusCode, reqURL)
	}

	return &Result{
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          &fetchBody{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// Close releases the response without consuming it.
func (r *Result) Close() error {
	return r.Body.Close()
}

// ContentType returns the origin-reported content type.
func (r *Result) ContentType() string {
	return r.Header.Get("Content-Type")
}

// RedirectLocation returns the origin's website-redirect target, if any.
func (r *Result) RedirectLocation() string {
	return r.Header.Get(redirectLocationHeader)
}
