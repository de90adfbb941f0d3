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
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// errClientAborted poisons the copy-side pipe when the client disconnects
// before the body is fully streamed, so a truncated object is never written
// back to the primary store.
var errClientAborted = errors.New("client aborted transfer before EOF")

// teeReader is the client-facing half of a duplicated body.  Bytes reach
// the copy side as the client reads them; the copy-side consumer must run
// concurrently or the client stream will stall against the pipe.
type teeReader struct {
	tee    io.Reader
	body   io.ReadCloser
	pw     *io.PipeWriter
	sawEOF bool
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.tee.Read(p)
	if err == io.EOF {
		t.sawEOF = true
	}
	return n, err
}

func (t *teeReader) Close() error {
	err := t.body.Close()
	if t.sawEOF {
		t.pw.Close()
	} else {
		t.pw.CloseWithError(errClientAborted)
	}
	return err
}

// Tee splits the response body into a client stream and a write-back
// stream.  With a known content length the body is duplicated on the fly
// through a pipe; closing the client side before EOF fails the write-back
// side rather than truncating it.  With an unknown length the body is fully
// buffered in memory and handed out twice -- the only case where the whole
// object is held in memory.
func (r *Result) Tee() (client io.ReadCloser, copySide io.ReadCloser, err error) {
	if r.ContentLength < 0 {
		buf, err := io.ReadAll(r.Body)
		closeErr := r.Close()
		if err != nil {
			return nil, nil, errors.Wrap(err, "unable to buffer origin body of unknown length")
		}
		if closeErr != nil {
			return nil, nil, closeErr
		}
		return io.NopCloser(bytes.NewReader(buf)), io.NopCloser(bytes.NewReader(buf)), nil
	}

	pr, pw := io.Pipe()
	client = &teeReader{
		tee:  io.TeeReader(r.Body, pw),
		body: r.Body,
		pw:   pw,
	}
	return client, pr, nil
}
