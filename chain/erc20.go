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

package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

// transferCalldata encodes transfer(to, amount): 4 byte selector, then the padded address and amount.
func (c *Client) transferCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := c.erc20.Pack("transfer", to, amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode transfer call")
	}
	return data, nil
}

func (c *Client) transferTopic() common.Hash {
	return c.erc20.Events["Transfer"].ID
}

// ToBaseUnits converts a human amount into the smallest integer unit for the given precision.
// Fractions below one base unit are truncated toward zero so a payout never exceeds the amount asked for.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts an integer amount in base units into a human amount.
func FromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}
