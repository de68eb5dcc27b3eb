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
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vexogate/vexogate/internal/apierror"
	redlock "github.com/vexogate/vexogate/internal/lock"
	"github.com/vexogate/vexogate/internal/notification"
	"github.com/vexogate/vexogate/model"
	"github.com/vexogate/vexogate/wallet"
)

const (
	ReasonGasTimeout        = "Gas injection confirmation timeout"
	ReasonInsufficientGas   = "Insufficient gas for distribution"
	ReasonThresholdExceeded = "Amount exceeds auto-approval threshold"
	ReasonManualApproval    = "Manually approved by admin"
	distributionFailed      = "Distribution failed: "
)

var (
	// errDryRun stops a handler at the first send when the gate is in dry-run mode.
	errDryRun = errors.New("dry-run: send skipped")

	errRetryLater = errors.New("retry next cycle")
)

// BatchResult counts what happened to the orders of one ProcessBatch call.
// Orders that were looked at but needed nothing are only counted in Processed.
type BatchResult struct {
	Processed int `json:"processed"`
	Advanced  int `json:"advanced"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type outcome int

const (
	outcomeIdle outcome = iota
	outcomeAdvanced
	outcomeEscalated
	outcomeSkipped
	outcomeFailed
)

// ProcessBatch runs one settlement step for every order, oldest first.
// A failing or panicking order never stops the rest of the batch.
func (g *Gate) ProcessBatch(ctx context.Context, orders []*model.Order) BatchResult {
	ctx, span := otel.Tracer("Settlement").Start(ctx, "ProcessBatch")
	defer span.End()
	started := time.Now()

	sorted := make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		if o != nil {
			sorted = append(sorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var result BatchResult
	for _, o := range sorted {
		if ctx.Err() != nil {
			logrus.WithError(ctx.Err()).Warn("Settlement batch interrupted")
			break
		}
		result.Processed++
		switch g.processOrder(ctx, o) {
		case outcomeAdvanced:
			result.Advanced++
		case outcomeEscalated:
			result.Escalated++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
		case outcomeIdle:
		}
	}

	span.SetAttributes(
		attribute.Int("orders.processed", result.Processed),
		attribute.Int("orders.escalated", result.Escalated),
		attribute.Bool("dry_run", g.dryRun),
	)
	batchDuration.Observe(time.Since(started).Seconds())
	if !g.dryRun {
		result.observe()
	}
	logrus.WithFields(logrus.Fields{
		"processed": result.Processed,
		"advanced":  result.Advanced,
		"escalated": result.Escalated,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"dry_run":   g.dryRun,
	}).Info("Settlement batch finished")
	return result
}

// settlement is the state of one order while a handler runs on it.
// persisted is the status last written, used as the check-and-set guard.
type settlement struct {
	gate      *Gate
	order     *model.Order
	persisted model.Status
	log       *logrus.Entry
}

func (g *Gate) processOrder(ctx context.Context, o *model.Order) (out outcome) {
	log := logrus.WithFields(logrus.Fields{
		"order_id": o.OrderID,
		"status":   o.Status,
	})
	if !o.Status.IsProcessable() {
		log.Debug("Order is not processable, skipping")
		return outcomeSkipped
	}

	unlock, err := g.lockOrder(ctx, o.OrderID)
	if err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			log.Debug("Order is locked by another worker, skipping")
			return outcomeSkipped
		}
		log.WithError(err).Warn("Failed to lock order")
		return outcomeFailed
	}
	defer unlock()

	s := &settlement{gate: g, order: o, persisted: o.Status, log: log}
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("Recovered from panic while settling order")
			out = s.escalate(ctx, fmt.Sprintf("Internal error: %v", p))
		}
	}()

	start := o.Status
	var stepErr error
	switch o.Status {
	case model.StatusWaitingPayment:
		stepErr = s.checkPayment(ctx)
	case model.StatusFundsDetected:
		stepErr = s.injectGas(ctx)
	case model.StatusGasInjected:
		stepErr = s.approveDistribution(ctx)
	case model.StatusDistributing:
		stepErr = s.distribute(ctx)
	case model.StatusCompleted, model.StatusManualReview, model.StatusRefunded:
		return outcomeSkipped
	default:
		stepErr = fmt.Errorf("unhandled status %q", o.Status)
	}
	return s.settle(ctx, start, stepErr)
}

func (s *settlement) settle(ctx context.Context, start model.Status, err error) outcome {
	switch {
	case err == nil:
		if s.persisted != start {
			return outcomeAdvanced
		}
		return outcomeIdle
	case errors.Is(err, errDryRun):
		s.log.Info("Dry run: stopping before send")
		return outcomeIdle
	case apierror.Is(err, apierror.ErrConflict):
		s.log.WithError(err).Info("Order changed by another actor, skipping")
		return outcomeSkipped
	case apierror.Is(err, apierror.ErrChainUnavailable):
		s.log.WithError(err).Warn("Chain unavailable, will retry next cycle")
		return outcomeFailed
	case errors.Is(err, errRetryLater), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.WithError(err).Warn("Step interrupted, will retry next cycle")
		return outcomeFailed
	}
	return s.escalate(ctx, reasonFor(err))
}

// escalate parks the order in manual review on top of its last persisted status.
// The save outlives a cancelled ctx.
func (s *settlement) escalate(ctx context.Context, reason string) outcome {
	ctx = context.WithoutCancel(ctx)
	o := s.order
	o.Status = s.persisted
	if err := o.Escalate(reason); err != nil {
		s.log.WithError(err).Error("Failed to escalate order")
		return outcomeFailed
	}
	if err := s.save(ctx); err != nil {
		if apierror.Is(err, apierror.ErrConflict) {
			return outcomeSkipped
		}
		s.log.WithError(err).Error("Failed to save escalated order")
		return outcomeFailed
	}

	s.log.WithField("reason", reason).Warn("Order moved to manual review")
	if !s.gate.dryRun {
		notification.NotifyManualReview(o.OrderID, reason)
	}
	return outcomeEscalated
}

func reasonFor(err error) string {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// save writes the order guarded by the last persisted status.
func (s *settlement) save(ctx context.Context) error {
	if s.gate.dryRun {
		s.log.WithField("next_status", s.order.Status).Info("Dry run: order not saved")
		s.persisted = s.order.Status
		return nil
	}
	from := s.persisted
	if err := s.gate.datasource.UpdateOrder(ctx, s.order, from); err != nil {
		return err
	}
	s.persisted = s.order.Status
	if from != s.order.Status {
		statusTransitions.WithLabelValues(string(from), string(s.order.Status)).Inc()
	}
	return nil
}

func (s *settlement) transition(ctx context.Context, next model.Status) error {
	if err := s.order.TransitionTo(next, ""); err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		return err
	}
	s.log.WithField("next_status", next).Info("Order advanced")
	return nil
}

func (s *settlement) emit(ctx context.Context, event string) {
	if s.gate.dryRun {
		return
	}
	if err := s.gate.notifier.Notify(ctx, event, s.order); err != nil {
		s.log.WithError(err).WithField("event", event).Warn("Failed to notify merchant")
	}
}

func (s *settlement) confirm(ctx context.Context, hash string) (bool, error) {
	w := s.gate.config.Worker
	return s.gate.chain.WaitForConfirmation(ctx, hash, w.ConfirmationAttempts, w.ConfirmationDelay())
}

// record stores a broadcast hash and saves without moving the status.
func (s *settlement) record(ctx context.Context, slot model.EvidenceSlot, hash string) error {
	if err := s.order.SetEvidence(slot, hash); err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		s.log.WithFields(logrus.Fields{"slot": slot, "tx_hash": hash}).WithError(err).Error("Broadcast transaction could not be recorded")
		return err
	}
	return nil
}

// checkPayment looks for tokens in the order wallet.
func (s *settlement) checkPayment(ctx context.Context) error {
	o := s.order
	balance, err := s.gate.chain.GetTokenBalance(ctx, o.WalletAddress)
	if err != nil {
		return err
	}
	if !balance.IsPositive() {
		s.log.Debug("No payment yet")
		return nil
	}

	if !o.ReceivedAmount.Valid {
		if err := o.RecordReceived(balance); err != nil {
			return err
		}
	}
	if o.TxIDIn == "" && !s.gate.config.Worker.DisableInboundLookup {
		hash, err := s.gate.chain.FindInboundTransfer(ctx, o.WalletAddress)
		switch {
		case err != nil:
			s.log.WithError(err).Warn("Inbound transfer lookup failed")
		case hash != "":
			if err := o.SetEvidence(model.SlotInbound, hash); err != nil {
				return err
			}
		}
	}

	s.log.WithField("received", o.Received().String()).Info("Funds detected")
	if err := s.transition(ctx, model.StatusFundsDetected); err != nil {
		return err
	}
	s.emit(ctx, model.EventFundsDetected)
	return nil
}

// injectGas funds the order wallet from the operator wallet unless it already holds enough.
func (s *settlement) injectGas(ctx context.Context) error {
	o := s.order
	amount := s.gate.config.GasStation.InjectionAmount

	native, err := s.gate.chain.GetNativeBalance(ctx, o.WalletAddress)
	if err != nil {
		return err
	}
	if native.GreaterThanOrEqual(amount) {
		s.log.WithField("native_balance", native.String()).Info("Wallet already holds gas, skipping injection")
		return s.transition(ctx, model.StatusGasInjected)
	}

	if o.TxIDGas == "" {
		if err := s.sendGas(ctx, amount); err != nil {
			return err
		}
	}

	confirmed, err := s.confirm(ctx, o.TxIDGas)
	if err != nil {
		return err
	}
	if !confirmed {
		return apierror.NewAPIError(apierror.ErrConfirmationTimeout, ReasonGasTimeout, nil)
	}
	return s.transition(ctx, model.StatusGasInjected)
}

func (s *settlement) sendGas(ctx context.Context, amount decimal.Decimal) error {
	o := s.order
	if s.gate.dryRun {
		s.log.WithField("amount", amount.String()).Info("Dry run: would inject gas")
		return errDryRun
	}

	unlock, err := s.gate.lockGasStation(ctx)
	if err != nil {
		return fmt.Errorf("gas station lock: %v: %w", err, errRetryLater)
	}
	defer unlock()

	hash, sendErr := s.gate.chain.SendNative(ctx, o.WalletAddress, amount)
	chainSends.WithLabelValues("gas", sendResult(sendErr)).Inc()
	if hash != "" {
		o.GasCost = decimal.NullDecimal{Decimal: amount, Valid: true}
		if err := s.record(ctx, model.SlotGasInjection, hash); err != nil {
			return err
		}
		s.log.WithField("tx_hash", hash).Info("Gas injection broadcast")
	}
	return sendErr
}

// approveDistribution checks the gas floor and the auto-approval threshold.
func (s *settlement) approveDistribution(ctx context.Context) error {
	o := s.order
	cnf := s.gate.config

	native, err := s.gate.chain.GetNativeBalance(ctx, o.WalletAddress)
	if err != nil {
		return err
	}
	if native.LessThan(cnf.GasStation.MinGasFloor) {
		return apierror.NewAPIError(apierror.ErrInsufficientGas, ReasonInsufficientGas, nil)
	}
	if !o.ManualOverride && (o.RequiresManualApproval(cnf.Security.ManualApprovalThreshold) || cnf.Security.ForceManualApproval) {
		return apierror.NewAPIError(apierror.ErrThresholdExceeded, ReasonThresholdExceeded, nil)
	}
	return s.transition(ctx, model.StatusDistributing)
}

// distribute pays the fee leg, then the merchant leg, from the order wallet.
func (s *settlement) distribute(ctx context.Context) error {
	o := s.order
	kp, err := wallet.FromPrivateKey(o.PrivateKey)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, distributionFailed+"order wallet key unavailable", nil)
	}
	defer kp.Zero()

	received := o.Received()
	fee := decimal.Min(o.Fee, received)
	feeWallet := s.gate.config.Fee.WalletAddress
	feePaid := false

	if fee.IsPositive() && feeWallet != "" {
		if err := s.payout(ctx, kp, model.SlotFeePayout, feeWallet, fee); err != nil {
			return failDistribution(err, false)
		}
		feePaid = true
	} else if fee.IsPositive() {
		s.log.Warn("Fee wallet not configured, fee stays in the order wallet")
	}

	merchant := model.MerchantAmount(received, fee)
	if merchant.IsPositive() {
		if err := s.payout(ctx, kp, model.SlotMerchantPayout, o.MerchantWallet, merchant); err != nil {
			return failDistribution(err, feePaid)
		}
	}

	if err := s.transition(ctx, model.StatusCompleted); err != nil {
		return err
	}
	o.PrivateKey = ""
	s.emit(ctx, model.EventCompleted)
	return nil
}

// payout sends one distribution leg. The fee hash is recorded on broadcast, the merchant
// hash once its transfer is confirmed. A leg whose slot is already populated is only
// re-checked. After a broadcast the outcome is confirm or escalate, even when ctx is
// cancelled; the hash of an unrecorded leg goes into the reason.
func (s *settlement) payout(ctx context.Context, kp *wallet.Keypair, slot model.EvidenceSlot, to string, amount decimal.Decimal) error {
	o := s.order
	leg := legName(slot)
	log := s.log.WithFields(logrus.Fields{"slot": slot, "amount": amount.String()})

	if hash := o.Evidence(slot); hash != "" {
		log.WithField("tx_hash", hash).Info("Payout already recorded, checking confirmation")
		return s.confirmRecorded(ctx, leg, hash)
	}

	if s.gate.dryRun {
		log.WithField("to", to).Info("Dry run: would send payout")
		return errDryRun
	}
	sent, sendErr := s.gate.chain.SendToken(ctx, kp, to, amount)
	chainSends.WithLabelValues(string(slot), sendResult(sendErr)).Inc()
	if sent == "" {
		return sendErr
	}
	log = log.WithField("tx_hash", sent)
	ctx = context.WithoutCancel(ctx)

	recordOnBroadcast := slot == model.SlotFeePayout
	if recordOnBroadcast {
		if err := s.recordSent(ctx, slot, leg, sent); err != nil {
			return err
		}
	}
	if sendErr != nil {
		return apierror.NewAPIError(apierror.ErrConfirmationTimeout, fmt.Sprintf("%s broadcast not acknowledged (tx %s)", leg, sent), sendErr.Error())
	}
	log.Info("Payout broadcast")

	if recordOnBroadcast {
		return s.confirmRecorded(ctx, leg, sent)
	}
	confirmed, err := s.confirm(ctx, sent)
	if err != nil {
		// Details carry only the text so a context error cannot turn this into a retry.
		return apierror.NewAPIError(apierror.ErrConfirmationTimeout, fmt.Sprintf("%s confirmation check failed (tx %s)", leg, sent), err.Error())
	}
	if !confirmed {
		return apierror.NewAPIError(apierror.ErrConfirmationTimeout, fmt.Sprintf("%s confirmation timeout (tx %s)", leg, sent), nil)
	}
	return s.recordSent(ctx, slot, leg, sent)
}

// recordSent stores the hash of a sent leg. A failed save escalates with the hash in the reason.
func (s *settlement) recordSent(ctx context.Context, slot model.EvidenceSlot, leg, hash string) error {
	if err := s.record(ctx, slot, hash); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("%s could not be recorded (tx %s)", leg, hash), err.Error())
	}
	return nil
}

// confirmRecorded waits for a leg whose hash is already stored. Transient errors are
// returned as they are, so the next cycle checks the same hash again.
func (s *settlement) confirmRecorded(ctx context.Context, leg, hash string) error {
	confirmed, err := s.confirm(ctx, hash)
	if err != nil {
		return err
	}
	if !confirmed {
		return apierror.NewAPIError(apierror.ErrConfirmationTimeout, fmt.Sprintf("%s confirmation timeout (tx %s)", leg, hash), nil)
	}
	return nil
}

func legName(slot model.EvidenceSlot) string {
	if slot == model.SlotFeePayout {
		return "fee payout"
	}
	return "merchant payout"
}

// failDistribution turns a leg failure into the manual review reason.
// Transient errors pass through untouched.
func failDistribution(err error, feePaid bool) error {
	if errors.Is(err, errDryRun) ||
		apierror.Is(err, apierror.ErrChainUnavailable) ||
		apierror.Is(err, apierror.ErrConflict) ||
		errors.Is(err, context.Canceled) {
		return err
	}

	code := apierror.ErrInternalServer
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	if feePaid {
		code = apierror.ErrPartialDistribution
	}
	return apierror.APIError{Code: code, Message: distributionFailed + reasonFor(err), Details: err}
}
