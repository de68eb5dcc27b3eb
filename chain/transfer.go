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
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vexogate/vexogate/internal/apierror"
	"github.com/vexogate/vexogate/wallet"
)

// SendNative moves amount of native currency from the gas wallet to the given address.
// Nonce reads, signing and broadcast are serialized so concurrent injections never share a nonce.
func (c *Client) SendNative(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if c.opts.GasWallet == nil || c.opts.GasWallet.ECDSA() == nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "gas wallet is not configured", nil)
	}
	toAddr, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	value := ToBaseUnits(amount, NativeDecimals)
	if value.Sign() <= 0 {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("native amount %s is not positive", amount), nil)
	}

	c.gasMu.Lock()
	defer c.gasMu.Unlock()

	return c.send(ctx, c.opts.GasWallet, toAddr, value, nil, c.opts.NativeGasLimit)
}

// SendToken transfers amount of the configured token from the given keypair to the given address.
// The transaction goes to the token contract with zero native value.
// When the broadcast fails in transport the hash is returned together with an
// ErrChainUnavailable error, as the node may have accepted the transaction.
func (c *Client) SendToken(ctx context.Context, from *wallet.Keypair, to string, amount decimal.Decimal) (string, error) {
	if from == nil || from.ECDSA() == nil {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, "sender key is not available", nil)
	}
	toAddr, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	units := ToBaseUnits(amount, c.opts.TokenDecimals)
	if units.Sign() <= 0 {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("token amount %s is not positive", amount), nil)
	}

	data, err := c.transferCalldata(toAddr, units)
	if err != nil {
		return "", err
	}
	return c.send(ctx, from, c.token, big.NewInt(0), data, c.opts.TokenGasLimit)
}

func (c *Client) send(ctx context.Context, from *wallet.Keypair, to common.Address, value *big.Int, data []byte, gasLimit uint64) (string, error) {
	sender := common.HexToAddress(from.Address)

	nonce, err := c.pendingNonce(ctx, sender)
	if err != nil {
		return "", err
	}
	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, from.ECDSA())
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "failed to sign transaction", errors.Wrap(err, "sign"))
	}

	hash := signed.Hash().Hex()

	rctx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.backend.SendTransaction(rctx, signed); err != nil {
		classified := classifySendError(err)
		if apierror.Is(classified, apierror.ErrChainUnavailable) {
			// the node may still have accepted it; the caller keeps the hash as evidence
			return hash, classified
		}
		return "", classified
	}

	logrus.WithFields(logrus.Fields{
		"from":      from.Address,
		"to":        to.Hex(),
		"nonce":     nonce,
		"gas_price": gasPrice.String(),
		"tx_hash":   hash,
	}).Info("transaction broadcast")

	return hash, nil
}

func (c *Client) pendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	rctx, cancel := c.callContext(ctx)
	defer cancel()
	nonce, err := c.backend.PendingNonceAt(rctx, account)
	if err != nil {
		return 0, unavailable("pending nonce query", err)
	}
	return nonce, nil
}

// gasPrice returns the node's suggestion plus the configured safety buffer.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	rctx, cancel := c.callContext(ctx)
	defer cancel()
	suggested, err := c.backend.SuggestGasPrice(rctx)
	if err != nil {
		return nil, unavailable("gas price query", err)
	}
	price := new(big.Int).Mul(suggested, big.NewInt(100+c.opts.GasPriceBufferPercent))
	return price.Div(price, big.NewInt(100)), nil
}

// classifySendError separates node rejections from transport failures.
// A rejected transaction was never accepted, so it is not retried blindly.
func classifySendError(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return unavailable("broadcast", err)
	}
	if strings.Contains(strings.ToLower(rpcErr.Error()), "insufficient funds") {
		return apierror.NewAPIError(apierror.ErrInsufficientGas, "sender cannot pay for gas", err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "transaction rejected by node", err)
}
