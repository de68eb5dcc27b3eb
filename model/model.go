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
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GenerateUUIDWithSuffix returns "<module>_<uuid>".
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}

// CalculateFee returns max(amount*percentage/100, minimum) without rounding.
func CalculateFee(amount, percentage, minimum decimal.Decimal) decimal.Decimal {
	return decimal.Max(amount.Mul(percentage).Div(hundred), minimum)
}

// MerchantAmount returns received minus fee, floored at zero.
func MerchantAmount(received, fee decimal.Decimal) decimal.Decimal {
	return decimal.Max(received.Sub(fee), decimal.Zero)
}
