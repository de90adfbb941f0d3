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

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openaddresses/lazymigrate/buckets"
	"github.com/openaddresses/lazymigrate/config"
	"github.com/openaddresses/lazymigrate/edgecache"
	"github.com/openaddresses/lazymigrate/fingerprint"
	"github.com/openaddresses/lazymigrate/ledger"
	"github.com/openaddresses/lazymigrate/limiter"
	"github.com/openaddresses/lazymigrate/origin"
	"github.com/openaddresses/lazymigrate/param"
	"github.com/openaddresses/lazymigrate/primary"
	"github.com/openaddresses/lazymigrate/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the migration proxy",
	RunE:  serveMain,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Uint16P("port", "p", 0, "port the proxy listens on")
	if err := viper.BindPFlag("Server.Port", serveCmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
}

func newLedgerStore() (ledger.Store, func(), error) {
	backend := param.Limiter_LedgerBackend.GetString()
	switch backend {
	case "badger":
		path := param.Limiter_LedgerPath.GetString()
		if path == "" {
			return nil, nil, errors.New("Limiter.LedgerPath is required for the badger ledger backend")
		}
		store, err := ledger.NewBadgerStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Errorln("Failed to close the usage ledger:", err)
			}
		}, nil
	case "memory":
		// Retain records for twice the window; expiry decisions still come
		// from the limiter, the TTL only garbage-collects.
		store := ledger.NewMemoryStore(2 * param.Limiter_Window.GetDuration())
		return store, store.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown ledger backend %s", backend)
	}
}

func serveMain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	egrp := config.GetErrGroup(ctx)

	table, err := buckets.LoadTable()
	if err != nil {
		return err
	}
	primaryStore, err := primary.FromConfig()
	if err != nil {
		return err
	}
	fetcher, err := origin.FromConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := newLedgerStore()
	if err != nil {
		return err
	}
	defer closeStore()

	usageLimiter, err := limiter.FromConfig(store)
	if err != nil {
		return err
	}

	cache := edgecache.FromConfig()
	defer cache.Close()

	resolver := fingerprint.NewResolver(param.Fingerprint_ASNDatabase.GetString())
	defer resolver.Close()

	handler := proxy.NewHandler(ctx, table, cache, primaryStore, fetcher, usageLimiter,
		resolver, param.EdgeCache_MaxBodyBytes.GetInt64())
	engine := proxy.GetEngine(handler)

	egrp.Go(func() error {
		return proxy.RunEngine(ctx, engine)
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	egrp.Go(func() error {
		select {
		case sig := <-sigs:
			log.Infoln("Received signal", sig, "- shutting down")
			return errShutdown
		case <-ctx.Done():
			return nil
		}
	})

	// Waits for the engine and for every in-flight write-back to settle.
	if err := egrp.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

var errShutdown = errors.New("shutdown requested")
