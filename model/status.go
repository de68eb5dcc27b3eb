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

import "fmt"

// Status is the lifecycle position of an order.
type Status string

const (
	StatusWaitingPayment Status = "waiting_payment"
	StatusFundsDetected  Status = "funds_detected"
	StatusGasInjected    Status = "gas_injected"
	StatusDistributing   Status = "distributing"
	StatusCompleted      Status = "completed"
	StatusManualReview   Status = "manual_review"
	StatusRefunded       Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusWaitingPayment: {StatusFundsDetected, StatusManualReview},
	StatusFundsDetected:  {StatusGasInjected, StatusManualReview},
	StatusGasInjected:    {StatusDistributing, StatusManualReview},
	StatusDistributing:   {StatusCompleted, StatusManualReview, StatusRefunded},
	StatusManualReview:   {StatusGasInjected, StatusRefunded},
	StatusCompleted:      {},
	StatusRefunded:       {},
}

// Statuses lists every status in pipeline order.
func Statuses() []Status {
	return []Status{
		StatusWaitingPayment,
		StatusFundsDetected,
		StatusGasInjected,
		StatusDistributing,
		StatusCompleted,
		StatusManualReview,
		StatusRefunded,
	}
}

// ParseStatus rejects anything that is not a known status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := transitions[status]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// IsProcessable reports whether the settlement loop acts on orders in s.
func (s Status) IsProcessable() bool {
	switch s {
	case StatusWaitingPayment, StatusFundsDetected, StatusGasInjected, StatusDistributing:
		return true
	}
	return false
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
