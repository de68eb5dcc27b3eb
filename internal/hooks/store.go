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

package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	deliveryKeyPrefix = "callbacks:"
	deliveryRetention = 30 * 24 * time.Hour
)

// DeliveryStore keeps the last callback outcome per order and event.
type DeliveryStore interface {
	Record(ctx context.Context, d Delivery) error
	List(ctx context.Context, orderID string) ([]Delivery, error)
}

type redisDeliveryStore struct {
	client redis.UniversalClient
}

// NewDeliveryStore creates a redis backed DeliveryStore.
func NewDeliveryStore(client redis.UniversalClient) DeliveryStore {
	return &redisDeliveryStore{client: client}
}

func deliveryKey(orderID string) string {
	return deliveryKeyPrefix + orderID
}

// Record overwrites the entry for d.Event and refreshes the retention window.
func (s *redisDeliveryStore) Record(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	key := deliveryKey(d.OrderID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, d.Event, data)
	pipe.Expire(ctx, key, deliveryRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store delivery: %w", err)
	}
	return nil
}

// List returns the recorded deliveries for an order, oldest first.
func (s *redisDeliveryStore) List(ctx context.Context, orderID string) ([]Delivery, error) {
	entries, err := s.client.HGetAll(ctx, deliveryKey(orderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries: %w", err)
	}

	deliveries := make([]Delivery, 0, len(entries))
	for event, raw := range entries {
		var d Delivery
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delivery %s: %w", event, err)
		}
		deliveries = append(deliveries, d)
	}
	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].DeliveredAt.Before(deliveries[j].DeliveredAt)
	})
	return deliveries, nil
}
