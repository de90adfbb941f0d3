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

// Package fingerprint derives the abuse-detection identity of a client.
//
// The fingerprint pairs the TLS-handshake hash forwarded by the fronting
// edge with the client's autonomous-system number, so a downloader that
// rotates IP addresses inside one network, or reuses one TLS stack across
// networks, still maps to a stable identity.
package fingerprint

import (
	"net"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/oschwald/geoip2-golang"
	log "github.com/sirupsen/logrus"
)

const (
	// Unknown substitutes for either half of the fingerprint when the edge
	// did not supply it and no local lookup is possible.
	Unknown = "unknown"

	// TLSHashHeader carries the JA3-style hash of the client's TLS
	// extensions, injected by the fronting edge.
	TLSHashHeader = "X-TLS-Fingerprint"

	// ASNHeader carries the client ASN when the edge already resolved it.
	ASNHeader = "X-Client-ASN"
)

// Resolver produces client fingerprints, optionally consulting a local
// GeoLite2-ASN database when the edge does not forward an ASN.
type Resolver struct {
	reader atomic.Pointer[geoip2.Reader]
}

// NewResolver opens the ASN database at dbPath when one is configured.  A
// missing or unreadable database downgrades ASN resolution to "unknown"
// rather than failing startup.
func NewResolver(dbPath string) *Resolver {
	r := &Resolver{}
	if dbPath == "" {
		return r
	}
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		log.Warningln("Failed to open ASN database", dbPath, "- client ASNs will be unknown:", err)
		return r
	}
	r.reader.Store(reader)
	return r
}

// Close releases the underlying database, if any.
func (r *Resolver) Close() {
	if reader := r.reader.Swap(nil); reader != nil {
		if err := reader.Close(); err != nil {
			log.Warningln("Failed to close ASN database:", err)
		}
	}
}

func (r *Resolver) lookupASN(clientIP string) string {
	reader := r.reader.Load()
	if reader == nil {
		return Unknown
	}
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return Unknown
	}
	record, err := reader.ASN(ip)
	if err != nil || record.AutonomousSystemNumber == 0 {
		return Unknown
	}
	return strconv.FormatUint(uint64(record.AutonomousSystemNumber), 10)
}

// Fingerprint returns "hash:asn" for the request, with "unknown" standing in
// for either missing component.
func (r *Resolver) Fingerprint(req *http.Request, clientIP string) string {
	hash := req.Header.Get(TLSHashHeader)
	if hash == "" {
		hash = Unknown
	}

	asn := req.Header.Get(ASNHeader)
	if asn == "" {
		asn = r.lookupASN(clientIP)
	}

	return hash + ":" + asn
}
