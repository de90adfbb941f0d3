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

package config

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openaddresses/lazymigrate/param"
)

// SetLogging configures the global logrus logger from the Logging.Level
// parameter.
func SetLogging() error {
	levelStr := param.Logging_Level.GetString()
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		return errors.Wrapf(err, "unknown log level %s", levelStr)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}
