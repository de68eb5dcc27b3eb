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

	"github.com/vexogate/vexogate"
	"github.com/vexogate/vexogate/model"
)

// InitiateOrder is the merchant's request to open a payment.
type InitiateOrder struct {
	DomainOrigin    string          `json:"domain_origin"`
	MerchantOrderID string          `json:"merchant_order_id"`
	CallbackURL     string          `json:"callback_url"`
	ClientEmail     string          `json:"client_email"`
	ProviderSlug    string          `json:"provider_slug"`
	FiatCurrency    string          `json:"fiat_currency"`
	FiatAmount      decimal.Decimal `json:"fiat_amount"`
	MerchantWallet  string          `json:"merchant_wallet"`
}

func (o *InitiateOrder) ToOrderRequest() vexogate.OrderRequest {
	return vexogate.OrderRequest{
		DomainOrigin:    o.DomainOrigin,
		MerchantOrderID: o.MerchantOrderID,
		CallbackURL:     o.CallbackURL,
		ClientEmail:     o.ClientEmail,
		ProviderSlug:    o.ProviderSlug,
		FiatCurrency:    o.FiatCurrency,
		FiatAmount:      o.FiatAmount,
		MerchantWallet:  o.MerchantWallet,
	}
}

type InitiateOrderResponse struct {
	Success       bool            `json:"success"`
	OrderID       string          `json:"order_id"`
	WalletAddress string          `json:"wallet_address"`
	PaymentURL    string          `json:"payment_url"`
	Status        model.Status    `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Fee           decimal.Decimal `json:"fee"`
	Disclaimer    string          `json:"disclaimer"`
}

func NewInitiateOrderResponse(c *vexogate.Checkout) InitiateOrderResponse {
	return InitiateOrderResponse{
		Success:       true,
		OrderID:       c.Order.OrderID,
		WalletAddress: c.Order.WalletAddress,
		PaymentURL:    c.PaymentURL,
		Status:        c.Order.Status,
		Amount:        c.Order.FiatAmount,
		Currency:      c.Order.FiatCurrency,
		Fee:           c.Order.Fee,
		Disclaimer:    c.Disclaimer,
	}
}

// OrderStatus is the public snapshot of an order, with explorer links in place of raw hashes.
type OrderStatus struct {
	Success         bool                  `json:"success"`
	OrderID         string                `json:"order_id"`
	MerchantOrderID string                `json:"merchant_order_id"`
	Status          model.Status          `json:"status"`
	FiatAmount      decimal.Decimal       `json:"fiat_amount"`
	FiatCurrency    string                `json:"fiat_currency"`
	CryptoReceived  decimal.NullDecimal   `json:"crypto_received"`
	WalletAddress   string                `json:"wallet_address"`
	Transactions    vexogate.Transactions `json:"transactions"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func NewOrderStatus(o *model.Order, links vexogate.Transactions) OrderStatus {
	return OrderStatus{
		Success:         true,
		OrderID:         o.OrderID,
		MerchantOrderID: o.MerchantOrderID,
		Status:          o.Status,
		FiatAmount:      o.FiatAmount,
		FiatCurrency:    o.FiatCurrency,
		CryptoReceived:  o.ReceivedAmount,
		WalletAddress:   o.WalletAddress,
		Transactions:    links,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// ManualSend moves an order's balance to an operator-chosen wallet. A zero amount sends everything.
type ManualSend struct {
	Wallet string          `json:"wallet"`
	Amount decimal.Decimal `json:"amount"`
}

type ActionResponse struct {
	Success bool         `json:"success"`
	Order   *model.Order `json:"order"`
	TxHash  string       `json:"tx_hash,omitempty"`
	TxURL   string       `json:"tx_url,omitempty"`
}
