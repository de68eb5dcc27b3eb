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
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/vexogate/vexogate/internal/apierror"
	redlock "github.com/vexogate/vexogate/internal/lock"
	"github.com/vexogate/vexogate/model"
	"github.com/vexogate/vexogate/wallet"
)

// withOrder loads an order under its lock and hands it to fn.
func (g *Gate) withOrder(ctx context.Context, orderID string, fn func(o *model.Order) error) (*model.Order, error) {
	unlock, err := g.lockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Order is being processed, try again shortly", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock order", err)
	}
	defer unlock()

	o, err := g.datasource.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	o.PrivateKey = ""
	return o, nil
}

func wrongStatus(o *model.Order, action string) error {
	return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Cannot %s an order in status %s", action, o.Status), nil)
}

// ForceApprove sends a manual review order back into the pipeline past the threshold check.
func (g *Gate) ForceApprove(ctx context.Context, orderID string) (*model.Order, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "ForceApprove")
	defer span.End()

	return g.withOrder(ctx, orderID, func(o *model.Order) error {
		if o.Status != model.StatusManualReview {
			return wrongStatus(o, "approve")
		}
		if !o.ReceivedAmount.Valid || !o.ReceivedAmount.Decimal.IsPositive() {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Cannot approve an order with no recorded payment", nil)
		}
		expected := o.Status
		o.ManualOverride = true
		if err := o.TransitionTo(model.StatusGasInjected, ReasonManualApproval); err != nil {
			return apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), nil)
		}
		if err := g.datasource.UpdateOrder(ctx, o, expected); err != nil {
			return err
		}
		statusTransitions.WithLabelValues(string(expected), string(o.Status)).Inc()
		logrus.WithField("order_id", o.OrderID).Info("Order manually approved")
		return nil
	})
}

// ManualSend moves tokens out of the order wallet to an operator chosen address and closes the
// order as refunded. A zero amount sends the whole token balance.
func (g *Gate) ManualSend(ctx context.Context, orderID, to string, amount decimal.Decimal) (*model.Order, string, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "ManualSend")
	defer span.End()

	var hash string
	o, err := g.withOrder(ctx, orderID, func(o *model.Order) error {
		if o.Status != model.StatusManualReview && o.Status != model.StatusDistributing {
			return wrongStatus(o, "manually send from")
		}
		if !wallet.ValidateAddress(to) {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid destination wallet address", nil)
		}
		if !o.Received().IsPositive() {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Order has no received funds", nil)
		}
		if amount.IsNegative() {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Amount must not be negative", nil)
		}

		balance, err := g.chain.GetTokenBalance(ctx, o.WalletAddress)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			amount = balance
		}
		if !amount.IsPositive() {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Order wallet holds no tokens", nil)
		}
		if amount.GreaterThan(balance) {
			return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Amount %s exceeds wallet balance %s", amount, balance), nil)
		}

		kp, err := wallet.FromPrivateKey(o.PrivateKey)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Order wallet key unavailable", nil)
		}
		defer kp.Zero()

		expected := o.Status
		sent, sendErr := g.chain.SendToken(ctx, kp, to, amount)
		chainSends.WithLabelValues("manual", sendResult(sendErr)).Inc()
		if sent == "" {
			return sendErr
		}
		hash = sent

		note := fmt.Sprintf("Manual send to %s - TX: %s", to, sent)
		if sendErr != nil {
			// broadcast outcome unknown: keep the status, leave the hash for the operator
			o.LastError = note + " (broadcast unconfirmed)"
			if err := g.datasource.UpdateOrder(ctx, o, expected); err != nil {
				logrus.WithFields(logrus.Fields{"order_id": o.OrderID, "tx_hash": sent}).WithError(err).Error("Manual send could not be recorded")
			}
			return sendErr
		}

		if err := o.TransitionTo(model.StatusRefunded, note); err != nil {
			return apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), nil)
		}
		if err := g.datasource.UpdateOrder(ctx, o, expected); err != nil {
			logrus.WithFields(logrus.Fields{"order_id": o.OrderID, "tx_hash": sent}).WithError(err).Error("Manual send could not be recorded")
			return err
		}
		statusTransitions.WithLabelValues(string(expected), string(o.Status)).Inc()
		logrus.WithFields(logrus.Fields{
			"order_id": o.OrderID,
			"tx_hash":  sent,
			"amount":   amount.String(),
		}).Info("Manual send completed")
		return nil
	})
	if err != nil {
		return nil, hash, err
	}
	return o, hash, nil
}

// RescueFee pays a fee that a completed order never sent, typically because the fee wallet
// was not configured at the time.
func (g *Gate) RescueFee(ctx context.Context, orderID string) (*model.Order, string, error) {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "RescueFee")
	defer span.End()

	var hash string
	o, err := g.withOrder(ctx, orderID, func(o *model.Order) error {
		if o.Status != model.StatusCompleted {
			return wrongStatus(o, "rescue the fee of")
		}
		if o.TxIDOutFee != "" {
			return apierror.NewAPIError(apierror.ErrConflict, "Fee already sent", nil)
		}
		fee := decimal.Min(o.Fee, o.Received())
		if !fee.IsPositive() {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Order has no fee to rescue", nil)
		}
		feeWallet := g.config.Fee.WalletAddress
		if feeWallet == "" {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Fee wallet is not configured", nil)
		}

		balance, err := g.chain.GetTokenBalance(ctx, o.WalletAddress)
		if err != nil {
			return err
		}
		if balance.LessThan(fee) {
			return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Wallet balance %s is below the fee %s", balance, fee), nil)
		}

		kp, err := wallet.FromPrivateKey(o.PrivateKey)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Order wallet key unavailable", nil)
		}
		defer kp.Zero()

		sent, sendErr := g.chain.SendToken(ctx, kp, feeWallet, fee)
		chainSends.WithLabelValues(string(model.SlotFeePayout), sendResult(sendErr)).Inc()
		if sent == "" {
			return sendErr
		}
		hash = sent
		if err := o.SetEvidence(model.SlotFeePayout, sent); err != nil {
			return err
		}
		if err := g.datasource.UpdateOrder(ctx, o, model.StatusCompleted); err != nil {
			logrus.WithFields(logrus.Fields{"order_id": o.OrderID, "tx_hash": sent}).WithError(err).Error("Rescued fee could not be recorded")
			return err
		}
		logrus.WithFields(logrus.Fields{"order_id": o.OrderID, "tx_hash": sent}).Info("Fee rescued")
		return sendErr
	})
	if err != nil {
		return nil, hash, err
	}
	return o, hash, nil
}
