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
	"encoding/json"
	"time"
)

// TypeDeliverCallback is the asynq task type for merchant callbacks.
const TypeDeliverCallback = "callback:deliver"

const defaultTimeoutSec = 10

// Callback addresses one merchant notification.
type Callback struct {
	OrderID string `json:"order_id"`
	Event   string `json:"event"`
	URL     string `json:"url"`
	Timeout int    `json:"timeout"` // seconds
}

// CallbackTaskPayload is what travels through the webhook queue.
type CallbackTaskPayload struct {
	Callback Callback        `json:"callback"`
	Body     json.RawMessage `json:"body"`
}

// CallbackResponse is the optional JSON body a merchant may answer with.
// A missing success field counts as success.
type CallbackResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// Delivery records the outcome of the last attempt for an order event.
type Delivery struct {
	OrderID     string    `json:"order_id"`
	Event       string    `json:"event"`
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (c Callback) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeoutSec * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
