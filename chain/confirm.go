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
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var errReceiptPending = errors.New("receipt not yet available")

// WaitForConfirmation polls for the receipt of txHash up to maxAttempts times, delay apart.
// It returns true only for a receipt whose status is successful. Running out of attempts returns
// false with a nil error. Only transport failures produce an error.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string, maxAttempts int, delay time.Duration) (bool, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	hash := common.HexToHash(txHash)

	var receipt *types.Receipt
	operation := func() error {
		rctx, cancel := c.callContext(ctx)
		defer cancel()

		r, err := c.backend.TransactionReceipt(rctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return errReceiptPending
		}
		if err != nil {
			return backoff.Permanent(unavailable("receipt query", err))
		}
		receipt = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, policy)
	switch {
	case errors.Is(err, errReceiptPending):
		return false, nil
	case err != nil:
		return false, err
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

// FindInboundTransfer looks for a token Transfer into address within the lookback window and
// returns the first matching transaction hash. No match is an empty string and a nil error.
func (c *Client) FindInboundTransfer(ctx context.Context, address string) (string, error) {
	account, err := parseAddress(address)
	if err != nil {
		return "", err
	}

	rctx, cancel := c.callContext(ctx)
	defer cancel()

	head, err := c.backend.BlockNumber(rctx)
	if err != nil {
		return "", unavailable("block number query", err)
	}
	var from uint64
	if head > c.opts.InboundLookbackBlocks {
		from = head - c.opts.InboundLookbackBlocks
	}

	logs, err := c.backend.FilterLogs(rctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{c.token},
		Topics: [][]common.Hash{
			{c.transferTopic()},
			nil,
			{common.BytesToHash(account.Bytes())},
		},
	})
	if err != nil {
		return "", unavailable("transfer log query", err)
	}
	if len(logs) == 0 {
		return "", nil
	}
	return logs[0].TxHash.Hex(), nil
}
