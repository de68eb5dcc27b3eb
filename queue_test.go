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
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexogate/vexogate/model"
)

func TestNewScanTask(t *testing.T) {
	cnf := testConfig()
	task, err := NewScanTask(cnf)
	require.NoError(t, err)
	assert.Equal(t, TypeScanOrders, task.Type())

	var payload ScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, cnf.Worker.MaxOrdersPerCycle, payload.Limit)
}

func TestNewScanTask_Unique(t *testing.T) {
	env := newTestEnv(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: env.mr.Addr()})
	defer client.Close()

	task, err := NewScanTask(env.cnf)
	require.NoError(t, err)

	_, err = client.Enqueue(task)
	require.NoError(t, err)
	_, err = client.Enqueue(task)
	assert.True(t, errors.Is(err, asynq.ErrDuplicateTask))

	pending, err := env.mr.List("asynq:{scan_queue}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNewQueue(t *testing.T) {
	env := newTestEnv(t)
	cnf := testConfig()
	cnf.Redis.Dns = env.mr.Addr()

	q, err := NewQueue(cnf)
	require.NoError(t, err)
	defer q.Close()

	task, err := NewScanTask(cnf)
	require.NoError(t, err)
	info, err := q.Client.Enqueue(task)
	require.NoError(t, err)
	assert.Equal(t, "scan_queue", info.Queue)
	assert.Equal(t, 0, info.MaxRetry)
}

func TestProcessScanTask(t *testing.T) {
	env := newTestEnv(t)
	first := env.newOrder(t, model.StatusWaitingPayment, "100", "100")
	second := env.newOrder(t, model.StatusWaitingPayment, "100", "100")

	payload, err := json.Marshal(ScanPayload{Limit: 1})
	require.NoError(t, err)

	advanced := testutil.ToFloat64(batchOrders.WithLabelValues("advanced"))
	err = env.gate.ProcessScanTask(context.Background(), asynq.NewTask(TypeScanOrders, payload))
	require.NoError(t, err)
	assert.Equal(t, advanced+1, testutil.ToFloat64(batchOrders.WithLabelValues("advanced")))

	// the second order is older and goes first
	assert.Equal(t, model.StatusFundsDetected, env.store.get(t, second.OrderID).Status)
	assert.Equal(t, model.StatusWaitingPayment, env.store.get(t, first.OrderID).Status)
}

func TestProcessScanTask_BadPayload(t *testing.T) {
	env := newTestEnv(t)

	err := env.gate.ProcessScanTask(context.Background(), asynq.NewTask(TypeScanOrders, []byte("garbage")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
