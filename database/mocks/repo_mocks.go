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

	"github.com/stretchr/testify/mock"
	"github.com/vexogate/vexogate/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Order methods

func (m *MockDataSource) CreateOrder(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockDataSource) GetOrderByID(ctx context.Context, orderID string) (*model.Order, error) {
	args := m.Called(ctx, orderID)
	if o, ok := args.Get(0).(*model.Order); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetProcessableOrders(ctx context.Context, limit int) ([]*model.Order, error) {
	args := m.Called(ctx, limit)
	if orders, ok := args.Get(0).([]*model.Order); ok {
		return orders, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetOrdersByStatus(ctx context.Context, status model.Status, limit, offset int) ([]*model.Order, error) {
	args := m.Called(ctx, status, limit, offset)
	if orders, ok := args.Get(0).([]*model.Order); ok {
		return orders, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) UpdateOrder(ctx context.Context, order *model.Order, expected model.Status) error {
	args := m.Called(ctx, order, expected)
	return args.Error(0)
}
