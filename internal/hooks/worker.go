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

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// NewCallbackTask wraps a callback and its JSON body into a queue task.
func NewCallbackTask(cb Callback, body []byte) (*asynq.Task, error) {
	payload, err := json.Marshal(CallbackTaskPayload{Callback: cb, Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal callback task: %w", err)
	}
	return asynq.NewTask(TypeDeliverCallback, payload), nil
}

// ProcessCallbackTask is the asynq handler for TypeDeliverCallback.
// Delivery failures are not retried.
func (d *Deliverer) ProcessCallbackTask(ctx context.Context, task *asynq.Task) error {
	var payload CallbackTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal callback task payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, cancel := context.WithTimeout(ctx, payload.Callback.timeout())
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"order_id": payload.Callback.OrderID,
		"event":    payload.Callback.Event,
	}).Debug("Processing queued callback task")

	if err := d.Deliver(ctx, payload.Callback, payload.Body); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}
