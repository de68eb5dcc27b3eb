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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const maxResponseBytes = 64 << 10

// Deliverer posts order events to merchant callback URLs.
type Deliverer struct {
	store DeliveryStore
	now   func() time.Time
}

// NewDeliverer creates a Deliverer. store may be nil, in which case outcomes
// are only logged.
func NewDeliverer(store DeliveryStore) *Deliverer {
	return &Deliverer{store: store, now: time.Now}
}

// Deliver performs a single POST of body to cb.URL. Retries are not attempted
// here; the queue enqueues callbacks with no retries.
func (d *Deliverer) Deliver(ctx context.Context, cb Callback, body []byte) error {
	status, err := d.deliver(ctx, cb, body)
	d.record(ctx, cb, status, err)
	return err
}

func (d *Deliverer) deliver(ctx context.Context, cb Callback, body []byte) (int, error) {
	if cb.URL == "" {
		return 0, errors.New("callback url is empty")
	}
	if !json.Valid(body) {
		return 0, errors.New("invalid JSON payload generated")
	}

	client := &http.Client{Timeout: cb.timeout()}

	logrus.WithFields(logrus.Fields{
		"order_id":     cb.OrderID,
		"event":        cb.Event,
		"callback_url": cb.URL,
	}).Info("Delivering merchant callback")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cb.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "VexoGate-Webhook/1.0")
	req.Header.Set("X-VexoGate-Event", cb.Event)
	req.Header.Set("X-VexoGate-Order-ID", cb.OrderID)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close response body")
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	if len(respBody) == 0 || !json.Valid(respBody) {
		return resp.StatusCode, nil
	}

	var cbResp CallbackResponse
	if err := json.Unmarshal(respBody, &cbResp); err != nil {
		// a JSON array or scalar is still a 2xx answer
		return resp.StatusCode, nil
	}
	if cbResp.Success != nil && !*cbResp.Success {
		return resp.StatusCode, fmt.Errorf("callback rejected: %s", cbResp.Message)
	}
	return resp.StatusCode, nil
}

func (d *Deliverer) record(ctx context.Context, cb Callback, status int, deliveryErr error) {
	fields := logrus.Fields{
		"order_id":    cb.OrderID,
		"event":       cb.Event,
		"status_code": status,
	}
	delivery := Delivery{
		OrderID:     cb.OrderID,
		Event:       cb.Event,
		URL:         cb.URL,
		StatusCode:  status,
		Success:     deliveryErr == nil,
		DeliveredAt: d.now().UTC(),
	}
	if deliveryErr != nil {
		delivery.Error = deliveryErr.Error()
		logrus.WithFields(fields).WithError(deliveryErr).Warn("Merchant callback failed")
	} else {
		logrus.WithFields(fields).Info("Merchant callback delivered")
	}

	if d.store == nil {
		return
	}
	if err := d.store.Record(context.WithoutCancel(ctx), delivery); err != nil {
		logrus.WithError(err).WithField("order_id", cb.OrderID).Error("Failed to record callback delivery")
	}
}
