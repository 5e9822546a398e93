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
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/netplayhub/hubsync/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Ticket store methods

func (m *MockDataSource) RecordTicket(ctx context.Context, tkt *model.Ticket) (*model.Ticket, error) {
	args := m.Called(ctx, tkt)
	if rf, ok := args.Get(0).(func(context.Context, *model.Ticket) *model.Ticket); ok {
		return rf(ctx, tkt), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *MockDataSource) GetTicketByProtocol(ctx context.Context, protocol string) (*model.Ticket, error) {
	args := m.Called(ctx, protocol)
	if rf, ok := args.Get(0).(func(context.Context, string) *model.Ticket); ok {
		return rf(ctx, protocol), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *MockDataSource) GetPendingTickets(ctx context.Context, limit int) ([]*model.Ticket, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Ticket), args.Error(1)
}

func (m *MockDataSource) MarkTicketSynced(ctx context.Context, ticketID, remoteProtocol, remoteStatus string) error {
	args := m.Called(ctx, ticketID, remoteProtocol, remoteStatus)
	return args.Error(0)
}

func (m *MockDataSource) RecordSyncFailure(ctx context.Context, ticketID, reason string) (int, error) {
	args := m.Called(ctx, ticketID, reason)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) FlagTicketForReview(ctx context.Context, ticketID string) error {
	args := m.Called(ctx, ticketID)
	return args.Error(0)
}

func (m *MockDataSource) GetOpenRemoteProtocols(ctx context.Context, limit, offset int) ([]string, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) UpdateRemoteStatuses(ctx context.Context, statuses map[string]string) error {
	args := m.Called(ctx, statuses)
	return args.Error(0)
}

func (m *MockDataSource) CountTicketsBySyncStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// Migration ledger methods

func (m *MockDataSource) RecordMigration(ctx context.Context, record *model.MigrationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) MarkMigrationRolledBack(ctx context.Context, version string) error {
	args := m.Called(ctx, version)
	return args.Error(0)
}

func (m *MockDataSource) GetMigrationRecords(ctx context.Context) ([]model.MigrationRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MigrationRecord), args.Error(1)
}

func (m *MockDataSource) CountRows(ctx context.Context, table string) (int64, error) {
	args := m.Called(ctx, table)
	return args.Get(0).(int64), args.Error(1)
}
