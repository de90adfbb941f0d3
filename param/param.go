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

// Package param provides typed accessors over the process-wide viper
// configuration.  Every configuration key consumed anywhere in the service
// is declared here so the full parameter surface can be read in one place.
package param

import (
	"time"

	"github.com/spf13/viper"
)

type StringParam struct {
	name string
}

func (p StringParam) GetName() string {
	return p.name
}

func (p StringParam) GetString() string {
	return viper.GetString(p.name)
}

type IntParam struct {
	name string
}

func (p IntParam) GetName() string {
	return p.name
}

func (p IntParam) GetInt() int {
	return viper.GetInt(p.name)
}

func (p IntParam) GetInt64() int64 {
	return viper.GetInt64(p.name)
}

type BoolParam struct {
	name string
}

func (p BoolParam) GetName() string {
	return p.name
}

func (p BoolParam) GetBool() bool {
	return viper.GetBool(p.name)
}

type DurationParam struct {
	name string
}

func (p DurationParam) GetName() string {
	return p.name
}

func (p DurationParam) GetDuration() time.Duration {
	return viper.GetDuration(p.name)
}

var (
	Logging_Level = StringParam{"Logging.Level"}

	Server_Address = StringParam{"Server.Address"}
	Server_Port    = IntParam{"Server.Port"}

	Origin_AccessKey    = StringParam{"Origin.AccessKey"}
	Origin_SecretKey    = StringParam{"Origin.SecretKey"}
	Origin_Region       = StringParam{"Origin.Region"}
	Origin_Service      = StringParam{"Origin.Service"}
	Origin_Endpoint     = StringParam{"Origin.Endpoint"}
	Origin_FetchTimeout = DurationParam{"Origin.FetchTimeout"}

	Primary_Endpoint  = StringParam{"Primary.Endpoint"}
	Primary_AccessKey = StringParam{"Primary.AccessKey"}
	Primary_SecretKey = StringParam{"Primary.SecretKey"}
	Primary_Region    = StringParam{"Primary.Region"}
	Primary_Bucket    = StringParam{"Primary.Bucket"}

	Limiter_Limit         = StringParam{"Limiter.Limit"}
	Limiter_Window        = DurationParam{"Limiter.Window"}
	Limiter_LedgerBackend = StringParam{"Limiter.LedgerBackend"}
	Limiter_LedgerPath    = StringParam{"Limiter.LedgerPath"}

	Fingerprint_ASNDatabase = StringParam{"Fingerprint.ASNDatabase"}

	EdgeCache_TTL          = DurationParam{"EdgeCache.TTL"}
	EdgeCache_ErrorTTL     = DurationParam{"EdgeCache.ErrorTTL"}
	EdgeCache_MaxBodyBytes = IntParam{"EdgeCache.MaxBodyBytes"}
)
