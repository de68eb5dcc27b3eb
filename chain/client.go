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

// Package chain talks to a single EVM chain and a single ERC-20 token contract over JSON-RPC.
// It reads balances, builds and signs legacy EIP-155 transfers, broadcasts them and polls for receipts.
package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/vexogate/vexogate/internal/apierror"
	"github.com/vexogate/vexogate/wallet"
)

const (
	// NativeDecimals is the precision of the chain's native currency (wei).
	NativeDecimals int32 = 18

	DefaultTokenDecimals         int32  = 6
	DefaultNativeGasLimit        uint64 = 21000
	DefaultTokenGasLimit         uint64 = 100000
	DefaultGasPriceBufferPercent int64  = 20
	DefaultRequestTimeout               = 15 * time.Second
	DefaultInboundLookbackBlocks uint64 = 5000

	// maxChainID keeps chainID*2+36 inside a uint64.
	maxChainID = math.MaxUint64/2 - 36
)

// Backend is the part of the JSON-RPC client the chain client needs. *ethclient.Client satisfies it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Options configures a Client. Zero values fall back to the Default constants.
type Options struct {
	ChainID               uint64
	TokenContract         string
	TokenDecimals         int32
	GasWallet             *wallet.Keypair
	RequestTimeout        time.Duration
	GasPriceBufferPercent int64
	NativeGasLimit        uint64
	TokenGasLimit         uint64
	InboundLookbackBlocks uint64
}

// Client is safe for concurrent use.
type Client struct {
	backend Backend
	opts    Options
	chainID *big.Int
	token   common.Address
	erc20   abi.ABI
	signer  types.Signer

	// gasMu serializes nonce allocation on the gas wallet.
	gasMu sync.Mutex
}

// Dial connects to rpcURL and returns a Client bound to it.
func Dial(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, unavailable("dial rpc", err)
	}
	return NewClient(backend, opts)
}

// NewClient validates opts and builds a Client on top of backend.
func NewClient(backend Backend, opts Options) (*Client, error) {
	if backend == nil {
		return nil, errors.New("chain backend is required")
	}
	if opts.ChainID == 0 || opts.ChainID > maxChainID {
		return nil, fmt.Errorf("chain id %d out of range", opts.ChainID)
	}
	if !wallet.ValidateAddress(opts.TokenContract) {
		return nil, fmt.Errorf("token contract %q is not a valid address", opts.TokenContract)
	}
	if opts.TokenDecimals <= 0 {
		opts.TokenDecimals = DefaultTokenDecimals
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.GasPriceBufferPercent <= 0 {
		opts.GasPriceBufferPercent = DefaultGasPriceBufferPercent
	}
	if opts.NativeGasLimit == 0 {
		opts.NativeGasLimit = DefaultNativeGasLimit
	}
	if opts.TokenGasLimit == 0 {
		opts.TokenGasLimit = DefaultTokenGasLimit
	}
	if opts.InboundLookbackBlocks == 0 {
		opts.InboundLookbackBlocks = DefaultInboundLookbackBlocks
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse erc20 abi")
	}

	chainID := new(big.Int).SetUint64(opts.ChainID)
	return &Client{
		backend: backend,
		opts:    opts,
		chainID: chainID,
		token:   common.HexToAddress(opts.TokenContract),
		erc20:   parsed,
		signer:  types.NewEIP155Signer(chainID),
	}, nil
}

// GasWalletAddress returns the operator gas wallet address, or an empty string if none is configured.
func (c *Client) GasWalletAddress() string {
	if c.opts.GasWallet == nil {
		return ""
	}
	return c.opts.GasWallet.Address
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.RequestTimeout)
}

func parseAddress(address string) (common.Address, error) {
	if !wallet.ValidateAddress(address) {
		return common.Address{}, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("invalid address %q", address), nil)
	}
	return common.HexToAddress(address), nil
}

func unavailable(op string, err error) error {
	return apierror.NewAPIError(apierror.ErrChainUnavailable, op+" failed", errors.Wrap(err, op))
}
