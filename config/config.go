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

// Package config handles process-wide initialization: viper defaults,
// environment binding, and the lifecycle errgroup that background tasks
// (most importantly primary-store write-backs) are registered with.
package config

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type ContextKey string

const (
	// EgrpKey is the context key carrying the process lifecycle errgroup.
	// Detached work (write-backs) is spawned on this group; shutdown waits
	// for the group before the process exits.
	EgrpKey ContextKey = "egrp"
)

// GetErrGroup returns the lifecycle errgroup carried by ctx, or nil when the
// context was not created through cmd.Execute / test_utils.TestContext.
func GetErrGroup(ctx context.Context) *errgroup.Group {
	if egrp, ok := ctx.Value(EgrpKey).(*errgroup.Group); ok {
		return egrp
	}
	return nil
}

// InitConfig sets configuration defaults and wires environment overrides.
// Every key has a default here except credentials and the bucket table,
// which must come from the config file or environment.
func InitConfig() {
	viper.SetDefault("Logging.Level", "info")

	viper.SetDefault("Server.Address", "0.0.0.0")
	viper.SetDefault("Server.Port", 8444)

	viper.SetDefault("Origin.Region", "us-east-1")
	viper.SetDefault("Origin.Service", "s3")
	viper.SetDefault("Origin.FetchTimeout", 20*time.Second)

	viper.SetDefault("Primary.Region", "auto")

	viper.SetDefault("Limiter.Limit", "5GiB")
	viper.SetDefault("Limiter.Window", 24*time.Hour)
	viper.SetDefault("Limiter.LedgerBackend", "memory")

	viper.SetDefault("EdgeCache.TTL", time.Hour)
	viper.SetDefault("EdgeCache.ErrorTTL", 5*time.Minute)
	viper.SetDefault("EdgeCache.MaxBodyBytes", 8*1024*1024)

	viper.SetEnvPrefix("lazymigrate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// ReadConfigFile merges the given YAML configuration file, if any, on top of
// the defaults from InitConfig.
func ReadConfigFile(cfgFile string) error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.MergeInConfig(); err != nil {
		return errors.Wrapf(err, "unable to read configuration file %s", cfgFile)
	}
	return nil
}
