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

package model

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Sync states of a locally stored ticket. Tickets are never deleted,
// they only transition between these states.
const (
	StatusPending = "PENDING"
	StatusSynced  = "SYNCED"
	StatusFailed  = "FAILED"
)

// LocalProtocolPrefix marks protocols issued while HubSoft was
// unreachable. Remote protocols come from the ERP and never carry it.
const LocalProtocolPrefix = "NPH-"

// Ticket is the durable local record of a support request. The local
// protocol doubles as the correlation token sent on every HubSoft
// create call, so a retried create can never open a duplicate remote
// ticket.
type Ticket struct {
	TicketID         string     `json:"ticket_id"`
	Protocol         string     `json:"protocol"`
	RemoteProtocol   string     `json:"remote_protocol,omitempty"`
	ClientRef        string     `json:"client_ref"`
	Subject          string     `json:"subject"`
	Description      string     `json:"description"`
	RemoteStatus     string     `json:"remote_status,omitempty"`
	SyncStatus       string     `json:"sync_status"`
	SyncAttempts     int        `json:"sync_attempts"`
	SyncError        string     `json:"sync_error,omitempty"`
	FlaggedForReview bool       `json:"flagged_for_review"`
	LastSyncAttempt  *time.Time `json:"last_sync_attempt,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewTicketRequest is what the chat surface submits when a customer
// opens a ticket. CPF digit validation happens upstream in the bot.
type NewTicketRequest struct {
	ClientRef   string `json:"client_ref"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

func (r *NewTicketRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ClientRef, validation.Required),
		validation.Field(&r.Subject, validation.Required, validation.Length(3, 200)),
		validation.Field(&r.Description, validation.Required, validation.Length(3, 4000)),
	)
}

// GenerateLocalProtocol issues a protocol for a ticket created while
// the ERP is unreachable. The prefix keeps it distinguishable from
// HubSoft-issued protocols; the shape shown to the user is the same.
func GenerateLocalProtocol() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("%s%s", LocalProtocolPrefix, id[:12])
}

// IsLocalProtocol reports whether a protocol was issued locally.
func IsLocalProtocol(protocol string) bool {
	return strings.HasPrefix(protocol, LocalProtocolPrefix)
}

// Synced reports whether the ticket has been accepted by HubSoft.
func (t *Ticket) Synced() bool {
	return t.SyncStatus == StatusSynced && t.RemoteProtocol != ""
}

// UserProtocol is the identifier shown to the customer: the remote one
// once the ticket is synced, the local one until then.
func (t *Ticket) UserProtocol() string {
	if t.Synced() {
		return t.RemoteProtocol
	}
	return t.Protocol
}
