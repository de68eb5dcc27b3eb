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

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventFundsDetected = "funds_detected"
	EventCompleted     = "completed"
)

// OrderEvent is the callback body sent to the merchant.
type OrderEvent struct {
	Event           string              `json:"event"`
	OrderID         string              `json:"order_id"`
	MerchantOrderID string              `json:"merchant_order_id"`
	Status          Status              `json:"status"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	ReceivedAmount  decimal.NullDecimal `json:"received_amount"`
	InboundTx       string              `json:"inbound_tx"`
	OutboundTx      string              `json:"outbound_tx"`
	Timestamp       time.Time           `json:"timestamp"`
}

func NewOrderEvent(event string, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Event:           event,
		OrderID:         o.OrderID,
		MerchantOrderID: o.MerchantOrderID,
		Status:          o.Status,
		Amount:          o.FiatAmount,
		Currency:        o.FiatCurrency,
		ReceivedAmount:  o.ReceivedAmount,
		InboundTx:       o.TxIDIn,
		OutboundTx:      o.TxIDOutMerchant,
		Timestamp:       at.UTC(),
	}
}
