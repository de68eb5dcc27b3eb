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
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/internal/hooks"
	"github.com/vexogate/vexogate/model"
)

// WebhookNotifier queues merchant callbacks on the webhook queue. Each callback is attempted
// once by the workers.
type WebhookNotifier struct {
	client  *asynq.Client
	queue   string
	timeout int
	now     func() time.Time
}

func NewWebhookNotifier(client *asynq.Client, cnf *config.Configuration) *WebhookNotifier {
	return &WebhookNotifier{
		client:  client,
		queue:   cnf.Worker.WebhookQueue,
		timeout: cnf.Worker.WebhookTimeoutSec,
		now:     time.Now,
	}
}

// Notify enqueues the event for the order's callback URL. Orders without one are ignored.
func (w *WebhookNotifier) Notify(ctx context.Context, event string, o *model.Order) error {
	log := logrus.WithFields(logrus.Fields{"order_id": o.OrderID, "event": event})
	if o.CallbackURL == "" {
		log.Debug("Order has no callback URL, skipping notification")
		return nil
	}

	body, err := json.Marshal(model.NewOrderEvent(event, o, w.now()))
	if err != nil {
		return err
	}
	task, err := hooks.NewCallbackTask(hooks.Callback{
		OrderID: o.OrderID,
		Event:   event,
		URL:     o.CallbackURL,
		Timeout: w.timeout,
	}, body)
	if err != nil {
		return err
	}

	info, err := w.client.EnqueueContext(ctx, task, asynq.Queue(w.queue), asynq.MaxRetry(0))
	if err != nil {
		log.WithError(err).Error("Failed to enqueue merchant callback")
		return err
	}
	log.WithField("task_id", info.ID).Info("Merchant callback queued")
	return nil
}

// NewWebhookProcessor returns the queue handler for merchant callbacks. Deliveries are
// recorded in redis when a client is given.
func NewWebhookProcessor(redisClient redis.UniversalClient) asynq.Handler {
	var store hooks.DeliveryStore
	if redisClient != nil {
		store = hooks.NewDeliveryStore(redisClient)
	}
	return asynq.HandlerFunc(hooks.NewDeliverer(store).ProcessCallbackTask)
}
