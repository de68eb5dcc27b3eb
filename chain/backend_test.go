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
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

// fakeBackend is an in-memory JSON-RPC stand in. Pending nonces advance with every accepted transaction.
type fakeBackend struct {
	mu sync.Mutex

	native   map[common.Address]*big.Int
	tokens   map[common.Address]*big.Int
	nonce    uint64
	gasPrice *big.Int

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	// pendingPolls is how many receipt lookups answer NotFound before the receipt shows up.
	pendingPolls int
	receiptCalls int

	head       uint64
	logs       []types.Log
	lastFilter ethereum.FilterQuery
	lastCall   ethereum.CallMsg

	err     error
	sendErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		native:   map[common.Address]*big.Int{},
		tokens:   map[common.Address]*big.Int{},
		gasPrice: big.NewInt(100_000_000_000),
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.native[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = call
	if f.err != nil {
		return nil, f.err
	}
	account := common.BytesToAddress(call.Data[4:36])
	v, ok := f.tokens[account]
	if !ok {
		v = big.NewInt(0)
	}
	return common.LeftPadBytes(v.Bytes(), 32), nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.nonce + uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if f.err != nil {
		return nil, f.err
	}
	if f.receiptCalls <= f.pendingPolls {
		return nil, ethereum.NotFound
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = q
	if f.err != nil {
		return nil, f.err
	}
	return f.logs, nil
}

func (f *fakeBackend) BlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.head, nil
}

func (f *fakeBackend) sentTransactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}
