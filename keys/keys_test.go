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

package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{"clean path untouched", "/us/nw/statewide.csv", "/us/nw/statewide.csv"},
		{"control bytes stripped", "/us/\x00\x1fnw.csv", "/us/nw.csv"},
		{"high bytes stripped", "/caf\xc3\xa9.csv", "/caf.csv"},
		{"percent control stripped", "/us%0d%0a/nw.csv", "/us/nw.csv"},
		{"doubled slashes collapse", "/us//nw///statewide.csv", "/us/nw/statewide.csv"},
		{"dot segments dropped", "/us/./../nw.csv", "/us/nw.csv"},
		{"disallowed bytes dropped", "/us/nw|;.csv", "/us/nw.csv"},
		{"disguised dot segments dropped", "/x/.%./.%./secret", "/x/secret"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, Sanitize(tt.in))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"/us/nw/statewide.csv",
		"/us%0d/../nw\x01.csv",
		"//a//b//c",
		"/runs/2024-05-01/us_pa_philadelphia.zip",
		// Stripping the disallowed byte exposes a fresh ".." segment; a
		// single pass would emit a traversal key here.
		"/x/.%./.%./secret",
		"/x/.|./secret",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "sanitize must be idempotent for %q", in)
	}
}

func TestValidateRejectsHostileInput(t *testing.T) {
	hostile := []string{
		"/us/../../etc/passwd",
		"/us/./nw.csv",
		"/us/%0d%0anw.csv",
		"/us/%1F.csv",
		"/us/\x07bell.csv",
		"/caf\xc3\xa9.csv",
	}
	for _, in := range hostile {
		err := Validate(in)
		require.Error(t, err, "expected rejection for %q", in)
		assert.ErrorIs(t, err, ErrUnsafePath)

		// The combined helper must refuse these outright -- no laundered key
		// may escape from a hostile input.
		_, err = Clean(in)
		assert.ErrorIs(t, err, ErrUnsafePath)
	}
}

func TestCleanRejectsDisguisedDotSegments(t *testing.T) {
	// Dot segments assembled out of bytes the alphabet filter removes:
	// Validate's patterns don't match the original input, but stripping
	// turns ".%." into "..", so the single-pass sanitized form is unstable
	// and Clean must refuse it.
	disguised := []string{
		"/x/.%./.%./secret",
		"/x/.|./secret",
		"/x/%./secret",
	}
	for _, in := range disguised {
		require.NoError(t, Validate(in), "Validate alone does not catch %q", in)
		_, err := Clean(in)
		assert.ErrorIs(t, err, ErrUnsafePath, "expected rejection for %q", in)
	}
}

func TestCleanAcceptsOrdinaryPaths(t *testing.T) {
	key, err := Clean("/us/nw/statewide.csv")
	require.NoError(t, err)
	assert.Equal(t, "/us/nw/statewide.csv", key)

	// %20 is not a control escape; the byte itself is dropped by the
	// alphabet filter but the request is still serviceable.
	key, err = Clean("/us/state%20wide.csv")
	require.NoError(t, err)
	assert.Equal(t, "/us/state20wide.csv", key)
}
