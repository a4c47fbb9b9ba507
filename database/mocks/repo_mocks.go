/*
Copyright 2024 Blnk Finance Authors.

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

	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// Transactional methods

func (m *MockDataSource) ReadForUpdate(ctx context.Context, ids ...string) (*database.Snapshot, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Snapshot), args.Error(1)
}

func (m *MockDataSource) Commit(ctx context.Context, writes database.WriteSet) error {
	args := m.Called(ctx, writes)
	return args.Error(0)
}

// Account methods

func (m *MockDataSource) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockDataSource) ListAccounts(ctx context.Context) ([]model.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Account), args.Error(1)
}

// Movement methods

func (m *MockDataSource) GetMovements(ctx context.Context, accountID string, query database.MovementQuery) ([]model.Movement, error) {
	args := m.Called(ctx, accountID, query)
	return args.Get(0).([]model.Movement), args.Error(1)
}

func (m *MockDataSource) GetMovementsByCorrelation(ctx context.Context, key string) ([]model.Movement, error) {
	args := m.Called(ctx, key)
	return args.Get(0).([]model.Movement), args.Error(1)
}

func (m *MockDataSource) SumMovements(ctx context.Context, accountID string) (database.MovementTotals, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(database.MovementTotals), args.Error(1)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
