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
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netplayhub/hubsync/internal/notification"
)

// healthCheckTimeout bounds one reachability probe. A hung probe must
// not block the next tick.
const healthCheckTimeout = 10 * time.Second

// MonitorService runs the background loops that keep local and remote
// state converging: a fast ERP reachability probe, a periodic batch
// status refresh, and a slow defensive reconciliation scan. Each loop
// ticks independently, so a slow status refresh never delays a health
// check.
type MonitorService struct {
	hub *Hubsync

	healthInterval   time.Duration
	statusInterval   time.Duration
	recoveryInterval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewMonitorService(hub *Hubsync, healthInterval, statusInterval, recoveryInterval time.Duration) *MonitorService {
	return &MonitorService{
		hub:              hub,
		healthInterval:   healthInterval,
		statusInterval:   statusInterval,
		recoveryInterval: recoveryInterval,
		stopCh:           make(chan struct{}),
	}
}

func (m *MonitorService) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	// Probe immediately so the service does not sit in the offline
	// default for a full interval after boot.
	m.checkHealth(ctx)

	m.wg.Add(3)
	go func() {
		defer m.wg.Done()
		m.loop(ctx, m.healthInterval, m.checkHealth)
	}()
	go func() {
		defer m.wg.Done()
		m.loop(ctx, m.statusInterval, m.refreshStatuses)
	}()
	go func() {
		defer m.wg.Done()
		m.loop(ctx, m.recoveryInterval, m.recoveryScan)
	}()

	logrus.Info("integration monitor started")
}

func (m *MonitorService) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	logrus.Info("integration monitor stopped")
}

func (m *MonitorService) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MonitorService) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// checkHealth probes the ERP health endpoint directly, outside the
// rate-limited queue, and records the result. An offline-to-online
// transition kicks off an immediate reconciliation of pending tickets.
func (m *MonitorService) checkHealth(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err := m.hub.erp.Raw().Ping(probeCtx)
	online := err == nil

	transitioned := m.hub.health.Record(online, time.Now())
	if !transitioned {
		return
	}

	if online {
		logrus.Info("hubsoft is back online")
		m.hub.queue.QueueAdminAlert("HubSoft is back online, syncing pending tickets", notification.SeverityInfo)

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			synced, err := m.hub.ReconcilePending(ctx)
			if err != nil {
				logrus.WithError(err).Error("post-recovery reconciliation failed")
				return
			}
			if synced > 0 {
				m.hub.queue.QueueAdminAlert(
					fmt.Sprintf("Synced %d locally stored tickets after HubSoft recovery", synced),
					notification.SeverityInfo)
			}
		}()
		return
	}

	logrus.WithError(err).Warn("hubsoft went offline, tickets will be stored locally")
	m.hub.queue.QueueAdminAlert("HubSoft is unreachable, new tickets are being stored locally", notification.SeverityWarning)
}

func (m *MonitorService) refreshStatuses(ctx context.Context) {
	if !m.hub.health.IsOnline() {
		return
	}
	updated, err := m.hub.RefreshActiveStatuses(ctx)
	if err != nil {
		logrus.WithError(err).Error("ticket status refresh failed")
		return
	}
	if updated > 0 {
		logrus.Infof("refreshed status of %d tickets", updated)
	}
}

// recoveryScan is the safety net behind the transition trigger: it
// drains any pending tickets the immediate reconciliation missed, for
// example ones whose sync failed transiently while the ERP was up.
func (m *MonitorService) recoveryScan(ctx context.Context) {
	if !m.hub.health.IsOnline() {
		return
	}
	if _, err := m.hub.ReconcilePending(ctx); err != nil {
		logrus.WithError(err).Error("recovery scan failed")
	}
}
