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
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"

	"github.com/vexogate/vexogate/internal/apierror"
)

// GetNativeBalance returns the native balance of address in whole units.
// An RPC failure is reported as ErrChainUnavailable and never as a zero balance.
func (c *Client) GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	account, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}

	rctx, cancel := c.callContext(ctx)
	defer cancel()

	wei, err := c.backend.BalanceAt(rctx, account, nil)
	if err != nil {
		return decimal.Zero, unavailable("native balance query", err)
	}
	return FromBaseUnits(wei, NativeDecimals), nil
}

// GetTokenBalance returns the configured token balance of address in whole token units.
func (c *Client) GetTokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	account, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}

	data, err := c.erc20.Pack("balanceOf", account)
	if err != nil {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "failed to encode balanceOf call", err)
	}

	rctx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.backend.CallContract(rctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, unavailable("token balance query", err)
	}

	values, err := c.erc20.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return decimal.Zero, unavailable("token balance decode", fmt.Errorf("unexpected balanceOf response of %d bytes", len(out)))
	}
	units, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, unavailable("token balance decode", fmt.Errorf("unexpected balanceOf type %T", values[0]))
	}
	return FromBaseUnits(units, c.opts.TokenDecimals), nil
}
