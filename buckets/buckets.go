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

// Package buckets maps request hosts to bucket configurations and holds the
// per-host access policies.  The table is built once at startup and never
// mutated afterwards.
package buckets

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var (
	ErrUnknownHost = errors.New("no bucket configured for host")
	ErrRootBlocked = errors.New("root requests are blocked for this bucket")
	ErrEmptyKey    = errors.New("resolved object key is empty")
)

// Config describes one served host.  Hosts are matched exactly; there is no
// wildcard or suffix matching.
type Config struct {
	BucketName   string `mapstructure:"bucketname"`
	IndexFile    string `mapstructure:"indexfile"`
	BlockRoot    bool   `mapstructure:"blockroot"`
	CacheControl string `mapstructure:"cachecontrol"`
}

// RefererRule gates a path prefix on a host behind the presence of a
// Referer header.  Policy lives in data, not in handler control flow.
type RefererRule struct {
	Host       string `mapstructure:"host"`
	PathPrefix string `mapstructure:"pathprefix"`
}

type Table struct {
	hosts   map[string]Config
	referer []RefererRule
}

// NewTable builds an immutable routing table.  The host map is copied so the
// caller cannot mutate the table afterwards.
func NewTable(hosts map[string]Config, referer []RefererRule) *Table {
	copied := make(map[string]Config, len(hosts))
	for host, cfg := range hosts {
		copied[strings.ToLower(host)] = cfg
	}
	return &Table{hosts: copied, referer: referer}
}

// LoadTable constructs the routing table from the Buckets and RefererRules
// configuration sections.
func LoadTable() (*Table, error) {
	var hosts map[string]Config
	if err := viper.UnmarshalKey("Buckets", &hosts); err != nil {
		return nil, errors.Wrap(err, "unable to parse the Buckets configuration table")
	}
	if len(hosts) == 0 {
		return nil, errors.New("no buckets configured; the Buckets table must contain at least one host")
	}
	for host, cfg := range hosts {
		if cfg.BucketName == "" {
			return nil, errors.Errorf("bucket for host %s has no BucketName", host)
		}
	}

	var referer []RefererRule
	if err := viper.UnmarshalKey("RefererRules", &referer); err != nil {
		return nil, errors.Wrap(err, "unable to parse the RefererRules configuration table")
	}
	return NewTable(hosts, referer), nil
}

// Lookup resolves a request host to its bucket configuration.  An unknown
// host is a distinct condition, not a fallback to some default bucket.
func (t *Table) Lookup(host string) (Config, error) {
	// Strip any port the client included in the Host header.
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	cfg, ok := t.hosts[strings.ToLower(host)]
	if !ok {
		return Config{}, errors.Wrap(ErrUnknownHost, host)
	}
	return cfg, nil
}

// RequiresReferer reports whether the (host, path) pair is gated behind a
// Referer header by the policy table.
func (t *Table) RequiresReferer(host, path string) bool {
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	host = strings.ToLower(host)
	for _, rule := range t.referer {
		if strings.EqualFold(rule.Host, host) && strings.HasPrefix(path, rule.PathPrefix) {
			return true
		}
	}
	return false
}

// ResolveKey applies the root/index policy to a sanitized path and returns
// the object key relative to the bucket.  A root or trailing-slash request
// on a BlockRoot bucket is rejected regardless of any configured index file.
func (c Config) ResolveKey(sanitized string) (string, error) {
	key := strings.TrimPrefix(sanitized, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		if c.BlockRoot {
			return "", ErrRootBlocked
		}
		if c.IndexFile != "" {
			key += c.IndexFile
		}
	}
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

// StorageKey prefixes a resolved object key with the bucket name, forming
// the key used against the primary store.
func (c Config) StorageKey(key string) string {
	return c.BucketName + "/" + key
}
