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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/model"
)

// CreateTicket records a support request. The response always carries
// a protocol the bot can hand to the customer, even when HubSoft is
// down.
func (a Api) CreateTicket(c *gin.Context) {
	var req model.NewTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tkt, err := a.service.CreateTicket(c.Request.Context(), &req)
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"protocol":       tkt.UserProtocol(),
		"local_protocol": tkt.Protocol,
		"sync_status":    tkt.SyncStatus,
		"created_at":     tkt.CreatedAt,
	})
}

// GetTicket resolves a ticket by its local or remote protocol.
func (a Api) GetTicket(c *gin.Context) {
	protocol, passed := c.Params.Get("protocol")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "protocol is required. pass protocol in the route /tickets/:protocol"})
		return
	}

	tkt, err := a.service.GetTicket(c.Request.Context(), protocol)
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, tkt)
}

// CloseTicket closes a synced ticket on customer confirmation.
func (a Api) CloseTicket(c *gin.Context) {
	protocol, passed := c.Params.Get("protocol")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "protocol is required. pass protocol in the route /tickets/:protocol/close"})
		return
	}

	if err := a.service.CloseTicket(c.Request.Context(), protocol); err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"protocol": protocol, "status": "closed"})
}

// GetTicketStats reports how many tickets sit in each sync state.
func (a Api) GetTicketStats(c *gin.Context) {
	counts, err := a.service.TicketStats(c.Request.Context())
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// LookupClient verifies a community member by CPF/CNPJ document.
func (a Api) LookupClient(c *gin.Context) {
	document, passed := c.Params.Get("document")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document is required. pass document in the route /clients/:document"})
		return
	}

	record, err := a.service.LookupClient(c.Request.Context(), document)
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// ReconcileNow triggers an immediate drain of pending tickets. Exposed
// for admins; the monitor runs the same drain on its own schedule.
func (a Api) ReconcileNow(c *gin.Context) {
	synced, err := a.service.ReconcilePending(c.Request.Context())
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"synced": synced})
}

// GetHealth reports ERP reachability and local ticket backlog.
func (a Api) GetHealth(c *gin.Context) {
	health := a.service.Health()

	counts, err := a.service.TicketStats(c.Request.Context())
	if err != nil {
		logrus.Error(err)
		counts = map[string]int64{}
	}

	status := http.StatusOK
	if !health.IsOnline {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"hubsoft":       health,
		"ticket_counts": counts,
	})
}

// GetCacheStats exposes the per-category cache counters.
func (a Api) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.CacheStats())
}

func (a Api) renderError(c *gin.Context, err error) {
	logrus.Error(err)
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
