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

package database

import (
	"context"

	"github.com/vexogate/vexogate/model"
)

// IDataSource defines the interface for data source operations.
type IDataSource interface {
	order
}

// order defines methods for handling settlement orders.
type order interface {
	CreateOrder(ctx context.Context, order *model.Order) error                                             // Persists a new order with its sealed key
	GetOrderByID(ctx context.Context, orderID string) (*model.Order, error)                                // Loads an order including its key
	GetProcessableOrders(ctx context.Context, limit int) ([]*model.Order, error)                           // Oldest active orders, keys included
	GetOrdersByStatus(ctx context.Context, status model.Status, limit, offset int) ([]*model.Order, error) // Listing without keys
	UpdateOrder(ctx context.Context, order *model.Order, expected model.Status) error                      // Check-and-set save
}
