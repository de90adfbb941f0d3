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
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"github.com/openaddresses/lazymigrate/param"
)

// GetEngine builds the gin engine: recovery, request logging, Prometheus
// instrumentation, and the pipeline as the catch-all route (every path is a
// potential object key).
func GetEngine(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	webLogger := log.WithFields(log.Fields{"daemon": "gin"})
	engine.Use(func(ctx *gin.Context) {
		startTime := time.Now()

		ctx.Next()

		latency := time.Since(startTime)
		webLogger.WithFields(log.Fields{"method": ctx.Request.Method,
			"status":   ctx.Writer.Status(),
			"time":     latency.String(),
			"client":   ctx.RemoteIP(),
			"resource": ctx.Request.URL.Path},
		).Info("Served Request")
	})

	prom := ginprometheus.NewPrometheus("lazymigrate")
	// Object paths are unbounded; label requests by host instead to keep
	// metric cardinality finite.
	prom.ReqCntURLLabelMappingFn = func(ctx *gin.Context) string {
		return ctx.Request.Host
	}
	prom.Use(engine)

	engine.NoRoute(handler.ServeObject)
	return engine
}

// RunEngine serves until ctx is canceled, then shuts down gracefully.
func RunEngine(ctx context.Context, engine *gin.Engine) error {
	addr := fmt.Sprintf("%v:%v", param.Server_Address.GetString(), param.Server_Port.GetInt())
	server := &http.Server{Addr: addr, Handler: engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorln("Failed to shut down the web engine cleanly:", err)
		}
	}()

	log.Infoln("Serving objects at", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web engine failed")
	}
	return nil
}
