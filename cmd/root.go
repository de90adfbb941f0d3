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
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openaddresses/lazymigrate/config"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "lazymigrate",
		Short: "Serve object-storage content while lazily migrating it",
		Long: `lazymigrate serves object-storage content to HTTP clients from a fast
primary store.  On a miss it streams the object from the origin store and
asynchronously persists a copy into the primary store, so traffic migrates
objects over time without a bulk copy job or client-visible downtime.`,
	}
)

// Execute runs the CLI with a context carrying the lifecycle errgroup;
// detached write-backs register on that group and shutdown waits for them.
func Execute() error {
	egrp, egrpCtx := errgroup.WithContext(context.Background())
	ctx := context.WithValue(egrpCtx, config.EgrpKey, egrp)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		log.Errorln("Fatal error occurred at the top level:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file to use")
}

func initConfig() {
	config.InitConfig()
	if err := config.ReadConfigFile(cfgFile); err != nil {
		log.Fatalln("Failed to read configuration:", err)
	}
	if err := config.SetLogging(); err != nil {
		log.Fatalln("Failed to configure logging:", err)
	}
}
