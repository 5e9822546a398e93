/*
Copyright 2024 NetPlay Hub Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package api is the HTTP surface the Telegram bot process calls. It
// is deliberately thin: request parsing and status mapping here, all
// semantics in the hubsync package.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netplayhub/hubsync"
	"github.com/netplayhub/hubsync/api/middleware"
	"github.com/netplayhub/hubsync/config"
)

type Api struct {
	service *hubsync.Hubsync
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/tickets", a.CreateTicket)
	router.GET("/tickets/:protocol", a.GetTicket)
	router.POST("/tickets/:protocol/close", a.CloseTicket)
	router.GET("/ticket-stats", a.GetTicketStats)

	router.GET("/clients/:document", a.LookupClient)

	router.POST("/reconcile", a.ReconcileNow)
	router.GET("/health", a.GetHealth)
	router.GET("/cache-stats", a.GetCacheStats)

	return a.router
}

func NewAPI(service *hubsync.Hubsync) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{service: service, router: r}
}
