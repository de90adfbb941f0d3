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

package proxy

import (
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/openaddresses/lazymigrate/metrics"
	"github.com/openaddresses/lazymigrate/primary"
)

// scheduleWriteBack persists a freshly fetched object into the primary
// store on the lifecycle errgroup.  The handler never waits on it and its
// outcome never reaches the client: a failed write-back just means the next
// request for the key fetches from the origin again.  Shutdown waits for
// the group, so an in-flight write-back holds the process open.
func (h *Handler) scheduleWriteBack(key string, body io.ReadCloser, opts primary.PutOptions) {
	if h.egrp == nil {
		log.Errorln("No lifecycle errgroup configured; dropping write-back for", key)
		body.Close()
		return
	}
	h.egrp.Go(func() error {
		defer body.Close()
		if err := h.primary.Put(h.baseCtx, key, body, opts); err != nil {
			metrics.WriteBacks.WithLabelValues("failure").Inc()
			log.Warningln("Write-back failed for", key, ":", err)
			return nil
		}
		metrics.WriteBacks.WithLabelValues("success").Inc()
		log.Debugln("Write-back completed for", key)
		return nil
	})
}
