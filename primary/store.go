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

// Package primary is the client for the fast object store that traffic
// migrates objects into.  The store is S3-compatible (R2 in production);
// all storage keys are bucket-prefixed ("<source bucket>/<object key>")
// inside one primary bucket.
package primary

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/openaddresses/lazymigrate/param"
)

// RedirectMetadataKey is the custom-metadata key mirroring the
// x-amz-website-redirect-location convention for objects that are
// themselves redirects.
const RedirectMetadataKey = "redirect-location"

var ErrNotFound = errors.New("object not found in primary store")

// ObjectInfo is the metadata surface of a stored object.
type ObjectInfo struct {
	ContentLength    int64
	ContentType      string
	ETag             string
	CacheControl     string
	RedirectLocation string
	Metadata         map[string]string
}

// Object pairs metadata with the body stream; the caller owns Body.
type Object struct {
	Info ObjectInfo
	Body io.ReadCloser
}

// PutOptions carries the content and custom metadata persisted alongside a
// written object.  A negative ContentLength means unknown.
type PutOptions struct {
	ContentType      string
	ContentLength    int64
	CacheControl     string
	RedirectLocation string
}

type Store struct {
	client *s3.Client
	bucket string
}

// New builds a store against an explicit endpoint (R2 or any S3-compatible
// service).  Path-style addressing keeps bucket resolution out of DNS.
func New(endpoint, accessKey, secretKey, region, bucket string) *Store {
	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(endpoint),
		Region:       region,
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	})
	return &Store{client: client, bucket: bucket}
}

// FromConfig builds the store from the Primary.* parameters.
func FromConfig() (*Store, error) {
	endpoint := param.Primary_Endpoint.GetString()
	bucket := param.Primary_Bucket.GetString()
	if endpoint == "" || bucket == "" {
		return nil, errors.New("Primary.Endpoint and Primary.Bucket must both be configured")
	}
	accessKey := param.Primary_AccessKey.GetString()
	secretKey := param.Primary_SecretKey.GetString()
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("Primary.AccessKey and Primary.SecretKey must both be configured")
	}
	return New(endpoint, accessKey, secretKey, param.Primary_Region.GetString(), bucket), nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

// Head fetches object metadata without the body; absence maps to ErrNotFound.
func (s *Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrap(ErrNotFound, key)
		}
		return nil, errors.Wrapf(err, "primary head failed for %s", key)
	}
	info := &ObjectInfo{
		ContentLength:    aws.ToInt64(out.ContentLength),
		ContentType:      aws.ToString(out.ContentType),
		ETag:             aws.ToString(out.ETag),
		CacheControl:     aws.ToString(out.CacheControl),
		RedirectLocation: aws.ToString(out.WebsiteRedirectLocation),
		Metadata:         out.Metadata,
	}
	if info.RedirectLocation == "" {
		info.RedirectLocation = out.Metadata[RedirectMetadataKey]
	}
	return info, nil
}

// Get fetches the object with its body; absence maps to ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrap(ErrNotFound, key)
		}
		return nil, errors.Wrapf(err, "primary get failed for %s", key)
	}
	info := ObjectInfo{
		ContentLength:    aws.ToInt64(out.ContentLength),
		ContentType:      aws.ToString(out.ContentType),
		ETag:             aws.ToString(out.ETag),
		CacheControl:     aws.ToString(out.CacheControl),
		RedirectLocation: aws.ToString(out.WebsiteRedirectLocation),
		Metadata:         out.Metadata,
	}
	if info.RedirectLocation == "" {
		info.RedirectLocation = out.Metadata[RedirectMetadataKey]
	}
	return &Object{Info: info, Body: out.Body}, nil
}

// Put persists an object.  Writes are idempotent by key, which is what
// makes concurrent duplicate write-backs for one object safe.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ContentLength >= 0 {
		input.ContentLength = aws.Int64(opts.ContentLength)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if opts.RedirectLocation != "" {
		input.WebsiteRedirectLocation = aws.String(opts.RedirectLocation)
		input.Metadata = map[string]string{RedirectMetadataKey: opts.RedirectLocation}
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return errors.Wrapf(err, "primary put failed for %s", key)
	}
	return nil
}
