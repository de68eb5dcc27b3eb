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

package vexogate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/vexogate/vexogate/config"
	redis_db "github.com/vexogate/vexogate/internal/redis-db"
)

// TypeScanOrders is the periodic task that runs one settlement batch.
const TypeScanOrders = "orders:scan"

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// ScanPayload bounds how many orders one scan may load.
type ScanPayload struct {
	Limit int `json:"limit"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
	}, nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close queue inspector")
	}
	return q.Client.Close()
}

// NewScanTask builds the orders:scan task. Unique keeps ticks from piling up while a
// long batch is still running.
func NewScanTask(conf *config.Configuration) (*asynq.Task, error) {
	payload, err := json.Marshal(ScanPayload{Limit: conf.Worker.MaxOrdersPerCycle})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeScanOrders, payload,
		asynq.Queue(conf.Worker.ScanQueue),
		asynq.MaxRetry(0),
		asynq.Unique(conf.Worker.ScanEvery()),
	), nil
}

// Scan loads up to limit processable orders and runs one batch over them.
func (g *Gate) Scan(ctx context.Context, limit int) (BatchResult, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "Scan")
	defer span.End()

	if limit <= 0 {
		limit = g.config.Worker.MaxOrdersPerCycle
	}
	orders, err := g.datasource.GetProcessableOrders(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return BatchResult{}, err
	}
	if len(orders) == 0 {
		logrus.Debug("No orders to process")
		return BatchResult{}, nil
	}
	return g.ProcessBatch(ctx, orders), nil
}

// ProcessScanTask is the asynq handler for TypeScanOrders.
func (g *Gate) ProcessScanTask(ctx context.Context, task *asynq.Task) error {
	var payload ScanPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal scan payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := g.Scan(ctx, payload.Limit)
	return err
}
