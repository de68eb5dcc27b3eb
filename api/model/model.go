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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/vexogate/vexogate/wallet"
)

var minFiatAmount = decimal.NewFromInt(1)

func walletAddressValidation(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !wallet.ValidateAddress(s) {
		return errors.New("must be a valid 0x-prefixed wallet address")
	}
	return nil
}

func amountAtLeast(min decimal.Decimal) validation.RuleFunc {
	return func(value interface{}) error {
		amount, ok := value.(decimal.Decimal)
		if !ok {
			return errors.New("invalid amount")
		}
		if amount.LessThan(min) {
			return errors.New("must be at least " + min.String())
		}
		return nil
	}
}

func notNegative(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount")
	}
	if amount.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func (o *InitiateOrder) ValidateInitiateOrder() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.MerchantOrderID, validation.Required, validation.Length(1, 255)),
		validation.Field(&o.DomainOrigin, validation.Required, validation.Length(1, 255)),
		validation.Field(&o.CallbackURL, validation.Required, is.URL),
		validation.Field(&o.MerchantWallet, validation.Required, validation.Length(42, 42), validation.By(walletAddressValidation)),
		validation.Field(&o.FiatAmount, validation.By(amountAtLeast(minFiatAmount))),
		validation.Field(&o.FiatCurrency, validation.Required, validation.Length(3, 3), is.Alpha),
		validation.Field(&o.ClientEmail, is.EmailFormat),
		validation.Field(&o.ProviderSlug, validation.Length(0, 50)),
	)
}

func (m *ManualSend) ValidateManualSend() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Wallet, validation.Required, validation.By(walletAddressValidation)),
		validation.Field(&m.Amount, validation.By(notNegative)),
	)
}
