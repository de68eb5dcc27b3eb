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

// Package vexogate drives custodial stablecoin orders from payment detection to payout.
// Each order owns a single-use wallet; the Gate funds it with gas from the operator
// wallet and splits what it received between the merchant and the fee wallet.
package vexogate

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/database"
	redlock "github.com/vexogate/vexogate/internal/lock"
	"github.com/vexogate/vexogate/model"
	"github.com/vexogate/vexogate/wallet"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// ChainClient is the chain access the Gate needs. *chain.Client satisfies it.
type ChainClient interface {
	GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetTokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
	SendNative(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	SendToken(ctx context.Context, from *wallet.Keypair, to string, amount decimal.Decimal) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string, maxAttempts int, delay time.Duration) (bool, error)
	FindInboundTransfer(ctx context.Context, address string) (string, error)
	GasWalletAddress() string
}

// Notifier tells the merchant about order events. Failures never block settlement.
type Notifier interface {
	Notify(ctx context.Context, event string, order *model.Order) error
}

type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, event string, order *model.Order) error {
	logrus.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"event":    event,
	}).Info("No notifier configured, event not delivered")
	return nil
}

// Gate is the settlement engine.
type Gate struct {
	datasource database.IDataSource
	chain      ChainClient
	redis      redis.UniversalClient
	notifier   Notifier
	config     *config.Configuration
	dryRun     bool
	now        func() time.Time
}

type Option func(*Gate)

func WithNotifier(n Notifier) Option {
	return func(g *Gate) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithDryRun makes the Gate log what it would do without sending or saving anything.
func WithDryRun(dryRun bool) Option {
	return func(g *Gate) {
		g.dryRun = dryRun
	}
}

// NewGate wires the engine. A nil redis client disables the distributed locks,
// which is only safe when a single worker runs.
func NewGate(db database.IDataSource, chain ChainClient, redisClient redis.UniversalClient, cnf *config.Configuration, opts ...Option) (*Gate, error) {
	if db == nil {
		return nil, errors.New("datasource is required")
	}
	if chain == nil {
		return nil, errors.New("chain client is required")
	}
	if cnf == nil {
		return nil, errors.New("configuration is required")
	}

	g := &Gate{
		datasource: db,
		chain:      chain,
		redis:      redisClient,
		notifier:   logNotifier{},
		config:     cnf,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if redisClient == nil {
		logrus.Warn("Redis client not provided, order and gas station locks are disabled")
	}
	return g, nil
}

func (g *Gate) DryRun() bool {
	return g.dryRun
}

// lockOrder takes the per-order lock. The returned func releases it.
func (g *Gate) lockOrder(ctx context.Context, orderID string) (func(), error) {
	if g.redis == nil {
		return func() {}, nil
	}
	locker := redlock.NewOrderLocker(g.redis, orderID)
	if err := locker.Lock(ctx, g.config.Worker.OrderLockTimeout()); err != nil {
		return nil, err
	}
	return func() { g.release(locker) }, nil
}

// lockGasStation waits for the operator wallet lock so that only one process allocates its nonces.
func (g *Gate) lockGasStation(ctx context.Context) (func(), error) {
	if g.redis == nil {
		return func() {}, nil
	}
	locker := redlock.NewGasStationLocker(g.redis, g.chain.GasWalletAddress())
	wait := g.config.Worker.GasStationLockWait()
	if err := locker.WaitLock(ctx, g.config.Chain.RequestTimeout()*4, wait); err != nil {
		return nil, err
	}
	return func() { g.release(locker) }, nil
}

func (g *Gate) release(locker *redlock.Locker) {
	// the caller's context may already be cancelled; the lock must still go
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := locker.Unlock(ctx); err != nil {
		logrus.WithField("key", locker.Key()).WithError(err).Warn("Failed to release lock")
	}
}
