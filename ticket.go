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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netplayhub/hubsync/hubsoft"
	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/internal/cache"
	"github.com/netplayhub/hubsync/internal/notification"
	"github.com/netplayhub/hubsync/model"
)

const (
	// pendingBatchSize caps how many unsynced tickets one
	// reconciliation pass drains.
	pendingBatchSize = 50

	// statusPageSize is how many remote protocols one batch status
	// query carries.
	statusPageSize = 100
)

// CreateTicket records a support request. The ticket is durable
// locally before any ERP call, and the customer always walks away with
// a protocol: the HubSoft one when the handoff succeeds, the local one
// otherwise. The local protocol doubles as the correlation token, so a
// later reconciliation of this ticket can never duplicate it remotely.
func (h *Hubsync) CreateTicket(ctx context.Context, req *model.NewTicketRequest) (*model.Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), err)
	}

	tkt := &model.Ticket{
		Protocol:    model.GenerateLocalProtocol(),
		ClientRef:   req.ClientRef,
		Subject:     req.Subject,
		Description: req.Description,
		SyncStatus:  model.StatusPending,
		CreatedAt:   time.Now(),
	}

	saved, err := h.datasource.RecordTicket(ctx, tkt)
	if err != nil {
		return nil, err
	}

	if !h.health.IsOnline() {
		logrus.WithField("protocol", saved.Protocol).Info("hubsoft offline, ticket stored locally")
		return saved, nil
	}

	if err := h.syncTicket(ctx, saved, hubsoft.PriorityCritical); err != nil {
		// The customer still gets the local protocol; the monitor
		// drains the ticket later.
		logrus.WithField("protocol", saved.Protocol).WithError(err).Warn("ticket handoff failed, left pending")
		h.recordFailure(ctx, saved, err)
		return saved, nil
	}

	return h.datasource.GetTicketByProtocol(ctx, saved.Protocol)
}

// GetTicket resolves a ticket by either its local or remote protocol.
func (h *Hubsync) GetTicket(ctx context.Context, protocol string) (*model.Ticket, error) {
	return h.datasource.GetTicketByProtocol(ctx, protocol)
}

// TicketStats counts local tickets per sync state.
func (h *Hubsync) TicketStats(ctx context.Context) (map[string]int64, error) {
	return h.datasource.CountTicketsBySyncStatus(ctx)
}

// CloseTicket closes a synced ticket in HubSoft and mirrors the status
// locally. Used when the customer confirms their issue is resolved.
func (h *Hubsync) CloseTicket(ctx context.Context, protocol string) error {
	tkt, err := h.datasource.GetTicketByProtocol(ctx, protocol)
	if err != nil {
		return err
	}
	if !tkt.Synced() {
		return apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("Ticket '%s' has not reached HubSoft yet", protocol), nil)
	}

	err = h.erp.Do(ctx, hubsoft.PriorityNormal, func(ctx context.Context, token string) error {
		return h.erp.Raw().UpdateTicketStatus(ctx, token, tkt.RemoteProtocol, "closed")
	})
	if err != nil {
		return err
	}
	return h.datasource.UpdateRemoteStatuses(ctx, map[string]string{tkt.RemoteProtocol: "closed"})
}

// LookupClient verifies a community member against HubSoft by CPF/CNPJ
// document. Responses are cached, so repeated verifications of the
// same member cost no ERP calls.
func (h *Hubsync) LookupClient(ctx context.Context, document string) (*hubsoft.ClientRecord, error) {
	var record hubsoft.ClientRecord
	err := h.erp.Call(ctx, cache.CategoryClientLookup, document, hubsoft.PriorityHigh, &record,
		func(ctx context.Context, token string) error {
			found, err := h.erp.Raw().LookupClient(ctx, token, document)
			if err != nil {
				return err
			}
			record = *found
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ReconcilePending drains locally stored tickets into HubSoft, oldest
// first. Each ticket is pre-checked by correlation token so a crash
// between a successful create and the local state update never causes
// a duplicate. Returns how many tickets were synced.
func (h *Hubsync) ReconcilePending(ctx context.Context) (int, error) {
	pending, err := h.datasource.GetPendingTickets(ctx, pendingBatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	logrus.Infof("reconciling %d pending tickets", len(pending))

	synced := 0
	for _, tkt := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := h.syncTicket(ctx, tkt, hubsoft.PriorityLow); err != nil {
			h.recordFailure(ctx, tkt, err)
			continue
		}
		synced++
	}
	return synced, nil
}

// syncTicket pushes one local ticket to HubSoft: correlation pre-check
// first, create only when the ERP has never seen the token. A create
// rejected as a conflict means a previous attempt landed, so the
// pre-check result of the next cycle will resolve it; both paths end
// with the ticket marked synced.
func (h *Hubsync) syncTicket(ctx context.Context, tkt *model.Ticket, priority hubsoft.Priority) error {
	remote, err := h.findByCorrelation(ctx, tkt.Protocol, priority)
	if err != nil {
		return err
	}

	if remote == nil {
		remote, err = h.createRemote(ctx, tkt, priority)
		if apierror.Is(err, apierror.ErrConflict) {
			// Raced with an earlier create that did land. Fetch what
			// the ERP holds for this token.
			remote, err = h.findByCorrelation(ctx, tkt.Protocol, priority)
			if err == nil && remote == nil {
				return apierror.NewAPIError(apierror.ErrReconciliationConflict,
					fmt.Sprintf("hubsoft reports a conflict for token '%s' but holds no ticket", tkt.Protocol), nil)
			}
		}
		if err != nil {
			return err
		}
	}

	return h.datasource.MarkTicketSynced(ctx, tkt.TicketID, remote.Protocol, remote.Status)
}

func (h *Hubsync) findByCorrelation(ctx context.Context, correlationToken string, priority hubsoft.Priority) (*hubsoft.TicketRecord, error) {
	var remote *hubsoft.TicketRecord
	err := h.erp.Do(ctx, priority, func(ctx context.Context, token string) error {
		existing, err := h.erp.Raw().FindTicketByCorrelation(ctx, token, correlationToken)
		if err != nil {
			return err
		}
		remote = existing
		return nil
	})
	return remote, err
}

func (h *Hubsync) createRemote(ctx context.Context, tkt *model.Ticket, priority hubsoft.Priority) (*hubsoft.TicketRecord, error) {
	var remote *hubsoft.TicketRecord
	err := h.erp.Do(ctx, priority, func(ctx context.Context, token string) error {
		created, err := h.erp.Raw().CreateTicket(ctx, token, hubsoft.CreateTicketRequest{
			ClientRef:        tkt.ClientRef,
			Subject:          tkt.Subject,
			Description:      tkt.Description,
			CorrelationToken: tkt.Protocol,
		})
		if err != nil {
			return err
		}
		remote = created
		return nil
	})
	return remote, err
}

// recordFailure moves the ticket to failed, bumps its attempt counter
// and flags it for a human once it has survived too many cycles. A
// flagged ticket keeps retrying; the flag only raises the alert.
func (h *Hubsync) recordFailure(ctx context.Context, tkt *model.Ticket, cause error) {
	attempts, err := h.datasource.RecordSyncFailure(ctx, tkt.TicketID, cause.Error())
	if err != nil {
		logrus.WithField("protocol", tkt.Protocol).WithError(err).Error("failed to record sync failure")
		return
	}

	if h.flagAfterCycles > 0 && attempts >= h.flagAfterCycles && !tkt.FlaggedForReview {
		if err := h.datasource.FlagTicketForReview(ctx, tkt.TicketID); err != nil {
			logrus.WithField("protocol", tkt.Protocol).WithError(err).Error("failed to flag ticket")
			return
		}
		h.queue.QueueAdminAlert(
			fmt.Sprintf("Ticket %s failed to sync %d times and needs manual attention: %s",
				tkt.Protocol, attempts, cause.Error()),
			notification.SeverityWarning)
	}
}

// RefreshActiveStatuses pulls the current HubSoft status for every
// synced, still-open ticket using paginated batch queries, and applies
// the changes locally in one transaction per batch. The open set is
// snapshotted up front: applying statuses mid-walk would shrink the
// result set under the offset and skip still-open tickets.
// Returns how many tickets changed status.
func (h *Hubsync) RefreshActiveStatuses(ctx context.Context) (int, error) {
	var open []string
	for offset := 0; ; offset += statusPageSize {
		protocols, err := h.datasource.GetOpenRemoteProtocols(ctx, statusPageSize, offset)
		if err != nil {
			return 0, err
		}
		open = append(open, protocols...)
		if len(protocols) < statusPageSize {
			break
		}
	}

	updated := 0
	for start := 0; start < len(open); start += statusPageSize {
		end := start + statusPageSize
		if end > len(open) {
			end = len(open)
		}
		protocols := open[start:end]

		statuses := map[string]string{}
		for page := 1; ; page++ {
			var result *hubsoft.TicketPage
			err := h.erp.Do(ctx, hubsoft.PriorityLow, func(ctx context.Context, token string) error {
				r, err := h.erp.Raw().ListTickets(ctx, token, protocols, page)
				if err != nil {
					return err
				}
				result = r
				return nil
			})
			if err != nil {
				return updated, err
			}
			for _, record := range result.Tickets {
				statuses[record.Protocol] = record.Status
			}
			if page >= result.LastPage {
				break
			}
		}

		if err := h.datasource.UpdateRemoteStatuses(ctx, statuses); err != nil {
			return updated, err
		}
		updated += len(statuses)
	}
	return updated, nil
}
