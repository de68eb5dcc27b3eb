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
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEvidenceRecorded  = errors.New("evidence slot already recorded")
	ErrReceivedRecorded  = errors.New("received amount already recorded")
)

// EvidenceSlot names one of the write-once transaction hash fields of an order.
type EvidenceSlot string

const (
	SlotInbound        EvidenceSlot = "txid_in"
	SlotGasInjection   EvidenceSlot = "txid_gas"
	SlotMerchantPayout EvidenceSlot = "txid_out_merchant"
	SlotFeePayout      EvidenceSlot = "txid_out_fee"
)

// Order is a single custodial payment and its settlement state.
// PrivateKey holds the plaintext key of the order wallet while in memory only; the
// repository stores it encrypted and it is never serialized.
type Order struct {
	ID              int64               `json:"-"`
	OrderID         string              `json:"order_id"`
	MerchantOrderID string              `json:"merchant_order_id"`
	DomainOrigin    string              `json:"domain_origin"`
	CallbackURL     string              `json:"callback_url,omitempty"`
	ClientEmail     string              `json:"client_email,omitempty"`
	ProviderSlug    string              `json:"provider_slug"`
	FiatCurrency    string              `json:"fiat_currency"`
	FiatAmount      decimal.Decimal     `json:"fiat_amount"`
	WalletAddress   string              `json:"wallet_address"`
	PrivateKey      string              `json:"-"`
	MerchantWallet  string              `json:"merchant_wallet"`
	Fee             decimal.Decimal     `json:"fee"`
	ReceivedAmount  decimal.NullDecimal `json:"received_amount"`
	GasCost         decimal.NullDecimal `json:"gas_cost"`
	TxIDIn          string              `json:"txid_in,omitempty"`
	TxIDGas         string              `json:"txid_gas,omitempty"`
	TxIDOutMerchant string              `json:"txid_out_merchant,omitempty"`
	TxIDOutFee      string              `json:"txid_out_fee,omitempty"`
	Status          Status              `json:"status"`
	LastError       string              `json:"last_error,omitempty"`
	ManualOverride  bool                `json:"manual_override"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TransitionTo moves the order to next, recording reason as the diagnostic when it is not empty.
func (o *Order) TransitionTo(next Status, reason string) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	if reason != "" {
		o.LastError = reason
	}
	return nil
}

// Escalate parks the order in manual review with reason.
func (o *Order) Escalate(reason string) error {
	return o.TransitionTo(StatusManualReview, reason)
}

// RecordReceived sets the settled token amount. It can only happen once.
func (o *Order) RecordReceived(amount decimal.Decimal) error {
	if o.ReceivedAmount.Valid {
		return ErrReceivedRecorded
	}
	o.ReceivedAmount = decimal.NullDecimal{Decimal: amount, Valid: true}
	return nil
}

// Received returns the settled token amount, or zero before funds were observed.
func (o *Order) Received() decimal.Decimal {
	if !o.ReceivedAmount.Valid {
		return decimal.Zero
	}
	return o.ReceivedAmount.Decimal
}

// Evidence returns the hash stored in slot, empty when the step was never attempted.
func (o *Order) Evidence(slot EvidenceSlot) string {
	switch slot {
	case SlotInbound:
		return o.TxIDIn
	case SlotGasInjection:
		return o.TxIDGas
	case SlotMerchantPayout:
		return o.TxIDOutMerchant
	case SlotFeePayout:
		return o.TxIDOutFee
	}
	return ""
}

// SetEvidence records hash in slot. Slots are write-once.
func (o *Order) SetEvidence(slot EvidenceSlot, hash string) error {
	if hash == "" {
		return fmt.Errorf("empty hash for %s", slot)
	}
	if o.Evidence(slot) != "" {
		return fmt.Errorf("%w: %s", ErrEvidenceRecorded, slot)
	}
	switch slot {
	case SlotInbound:
		o.TxIDIn = hash
	case SlotGasInjection:
		o.TxIDGas = hash
	case SlotMerchantPayout:
		o.TxIDOutMerchant = hash
	case SlotFeePayout:
		o.TxIDOutFee = hash
	default:
		return fmt.Errorf("unknown evidence slot %q", slot)
	}
	return nil
}

// MerchantAmount is what the merchant receives once the fee is taken out.
func (o *Order) MerchantAmount() decimal.Decimal {
	return MerchantAmount(o.Received(), o.Fee)
}

// RequiresManualApproval reports whether the fiat amount is above threshold.
func (o *Order) RequiresManualApproval(threshold decimal.Decimal) bool {
	return o.FiatAmount.GreaterThan(threshold)
}

func (o *Order) IsFinal() bool {
	return o.Status.IsTerminal()
}
