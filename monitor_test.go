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

package hubsync

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/netplayhub/hubsync/model"
)

func registerHealthResponder(online *atomic.Bool) {
	httpmock.RegisterResponder("GET", erpBaseURL+"/api/v1/integration/health",
		func(*http.Request) (*http.Response, error) {
			if online.Load() {
				return httpmock.NewStringResponse(http.StatusOK, `{"status":"ok"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusBadGateway, ``), nil
		})
}

func TestCheckHealthRecordsReachability(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var online atomic.Bool
	registerHealthResponder(&online)

	hub, mockDS := newTestHub(t, 0)
	mockDS.On("GetPendingTickets", mock.Anything, mock.Anything).Return(nil, nil)
	m := NewMonitorService(hub, time.Hour, time.Hour, time.Hour)

	m.checkHealth(context.Background())
	assert.False(t, hub.Health().IsOnline)

	online.Store(true)
	m.checkHealth(context.Background())
	assert.True(t, hub.Health().IsOnline)
	assert.False(t, hub.Health().LastTransitionAt.IsZero())
}

func TestRecoveryTriggersOnOfflineToOnlineTransition(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerAuthResponder()

	var online atomic.Bool
	registerHealthResponder(&online)

	store := newErpTicketStore()
	store.register()

	hub, mockDS := newTestHub(t, 0)

	// Three tickets accepted while the ERP was down.
	stored := []*model.Ticket{
		pendingTicket("NPH-AAAA00000001"),
		pendingTicket("NPH-BBBB00000002"),
		pendingTicket("NPH-CCCC00000003"),
	}
	var synced atomic.Int64
	mockDS.On("GetPendingTickets", mock.Anything, pendingBatchSize).Return(stored, nil)
	mockDS.On("MarkTicketSynced", mock.Anything, mock.Anything, mock.Anything, "open").
		Run(func(mock.Arguments) { synced.Add(1) }).Return(nil)

	m := NewMonitorService(hub, time.Hour, time.Hour, time.Hour)

	m.checkHealth(context.Background())
	assert.False(t, hub.Health().IsOnline, "starts offline while the ERP is down")

	online.Store(true)
	m.checkHealth(context.Background())

	assert.Eventually(t, func() bool { return synced.Load() == 3 },
		5*time.Second, 20*time.Millisecond,
		"all locally stored tickets must reach the ERP after recovery")
	assert.Equal(t, 3, store.creates, "each offline ticket lands exactly once")
	mockDS.AssertExpectations(t)
}

func TestRefreshStatusesSkipsWhileOffline(t *testing.T) {
	hub, mockDS := newTestHub(t, 0)
	m := NewMonitorService(hub, time.Hour, time.Hour, time.Hour)

	m.refreshStatuses(context.Background())
	m.recoveryScan(context.Background())

	// No datasource calls while the ERP is offline.
	mockDS.AssertNotCalled(t, "GetOpenRemoteProtocols", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "GetPendingTickets", mock.Anything, mock.Anything)
}

func TestMonitorStartStop(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var online atomic.Bool
	registerHealthResponder(&online)

	hub, _ := newTestHub(t, 0)
	m := NewMonitorService(hub, time.Hour, time.Hour, time.Hour)

	ctx := context.Background()
	m.Start(ctx)
	assert.True(t, m.IsRunning())

	// Idempotent start.
	m.Start(ctx)
	assert.True(t, m.IsRunning())

	m.Stop()
	assert.False(t, m.IsRunning())

	// Idempotent stop.
	m.Stop()
	assert.False(t, m.IsRunning())
}
