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

// Package keys normalizes attacker-controlled URL paths into storage keys.
//
// Sanitize produces the cleaned key; Validate inspects the *original* input
// and rejects anything that needed cleaning in the first place.  A request
// whose path contained control bytes, percent-encoded control bytes, or dot
// segments is refused outright rather than served from the laundered key.
package keys

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnsafePath marks input that matched one of the rejection patterns.
	ErrUnsafePath = errors.New("path contains unsafe characters")

	// Percent-encoded forms of bytes 0x00-0x1F.
	pctControlRe = regexp.MustCompile(`%[01][0-9a-fA-F]`)

	// A "." or ".." path segment anywhere in the input.
	dotSegmentRe = regexp.MustCompile(`(^|/)\.\.?(/|$)`)

	// Anything outside the storage-key alphabet.
	disallowedRe = regexp.MustCompile(`[^A-Za-z0-9_.\-/]`)
)

func hasControlBytes(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] >= 0x7f {
			return true
		}
	}
	return false
}

// Sanitize maps a raw URL path to a storage-safe key: control and non-ASCII
// bytes are stripped, percent-encoded control sequences are removed, runs of
// slashes collapse to one, "." and ".." segments are dropped, and any byte
// outside [A-Za-z0-9_.-/] is discarded.  Passes repeat until the key stops
// changing: dropping a disallowed byte can expose a new dot segment (".%."
// becomes ".."), so a single pass is not enough.  Sanitizing an
// already-clean key is a no-op.
func Sanitize(raw string) string {
	cleaned := sanitizePass(raw)
	for {
		next := sanitizePass(cleaned)
		if next == cleaned {
			return cleaned
		}
		cleaned = next
	}
}

func sanitizePass(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		}
	}
	cleaned := pctControlRe.ReplaceAllString(sb.String(), "")

	for strings.Contains(cleaned, "//") {
		cleaned = strings.ReplaceAll(cleaned, "//", "/")
	}

	segments := strings.Split(cleaned, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	cleaned = strings.Join(kept, "/")

	return disallowedRe.ReplaceAllString(cleaned, "")
}

// Validate re-checks the original input against the rejection patterns.
// Sanitize already strips these, but a path that *contained* them is treated
// as hostile and refused; stripping must never turn a malicious request into
// a serviceable one.
func Validate(raw string) error {
	if hasControlBytes(raw) {
		return errors.Wrapf(ErrUnsafePath, "control or non-ASCII bytes in path %q", raw)
	}
	if pctControlRe.MatchString(raw) {
		return errors.Wrapf(ErrUnsafePath, "percent-encoded control bytes in path %q", raw)
	}
	if dotSegmentRe.MatchString(raw) {
		return errors.Wrapf(ErrUnsafePath, "dot segments in path %q", raw)
	}
	return nil
}

// Clean sanitizes raw and then validates the original input, returning
// ErrUnsafePath when the request must be rejected.  Beyond the Validate
// patterns, any input whose single-pass sanitized form is not stable under a
// second pass is refused: instability means stripping manufactured a dot
// segment that the original input disguised.
func Clean(raw string) (string, error) {
	if err := Validate(raw); err != nil {
		return "", err
	}
	cleaned := sanitizePass(raw)
	if sanitizePass(cleaned) != cleaned {
		return "", errors.Wrapf(ErrUnsafePath, "path %q does not sanitize cleanly", raw)
	}
	return cleaned, nil
}
