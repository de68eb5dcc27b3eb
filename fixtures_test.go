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

package vexogate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/internal/apierror"
	"github.com/vexogate/vexogate/model"
	"github.com/vexogate/vexogate/wallet"
)

// memStore is an in-memory repository with the same check-and-set and write-once rules as the SQL one.
type memStore struct {
	mu      sync.Mutex
	orders  map[string]model.Order
	updates int

	// updateErr, when set, is returned by the next UpdateOrder calls.
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]model.Order{}}
}

func (m *memStore) put(o *model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderID] = *o
}

func (m *memStore) get(t *testing.T, id string) *model.Order {
	t.Helper()
	o, err := m.GetOrderByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (m *memStore) CreateOrder(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.OrderID]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "order already exists", nil)
	}
	m.orders[o.OrderID] = *o
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("order with ID '%s' not found", id), nil)
	}
	return &o, nil
}

func (m *memStore) GetProcessableOrders(_ context.Context, limit int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.Status.IsProcessable() {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetOrdersByStatus(_ context.Context, status model.Status, limit, offset int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.Status == status {
			o := o
			o.PrivateKey = ""
			out = append(out, &o)
		}
	}
	if offset >= len(out) {
		return []*model.Order{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateOrder(ctx context.Context, o *model.Order, expected model.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.orders[o.OrderID]
	if !ok || stored.Status != expected {
		return apierror.NewAPIError(apierror.ErrConflict, "order status changed", nil)
	}
	m.updates++

	keep := func(old, next string) string {
		if old != "" {
			return old
		}
		return next
	}
	next := *o
	next.PrivateKey = stored.PrivateKey
	next.TxIDIn = keep(stored.TxIDIn, o.TxIDIn)
	next.TxIDGas = keep(stored.TxIDGas, o.TxIDGas)
	next.TxIDOutMerchant = keep(stored.TxIDOutMerchant, o.TxIDOutMerchant)
	next.TxIDOutFee = keep(stored.TxIDOutFee, o.TxIDOutFee)
	if stored.ReceivedAmount.Valid {
		next.ReceivedAmount = stored.ReceivedAmount
	}
	if stored.GasCost.Valid {
		next.GasCost = stored.GasCost
	}
	m.orders[o.OrderID] = next
	return nil
}

// sentTx is one broadcast seen by fakeChain.
type sentTx struct {
	Kind   string
	From   string
	To     string
	Amount decimal.Decimal
	Hash   string
}

// fakeChain keeps balances in memory. Sends move funds immediately; confirmation
// succeeds unless the destination is listed in timeoutTo.
type fakeChain struct {
	mu        sync.Mutex
	gasWallet string
	token     map[string]decimal.Decimal
	native    map[string]decimal.Decimal
	sends     []sentTx
	unconfirm map[string]bool

	timeoutTo    map[string]bool
	balanceErr   error
	sendErr      error
	sendErrHash  bool
	confirmErr   error
	inbound      string
	inboundErr   error
	panicBalance string

	// onConfirm runs at the start of every WaitForConfirmation call.
	onConfirm func()
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		gasWallet: randomAddress(),
		token:     map[string]decimal.Decimal{},
		native:    map[string]decimal.Decimal{},
		unconfirm: map[string]bool{},
		timeoutTo: map[string]bool{},
	}
}

func (f *fakeChain) GetNativeBalance(_ context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.native[address], nil
}

func (f *fakeChain) GetTokenBalance(_ context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicBalance == address {
		panic("corrupted balance response")
	}
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.token[address], nil
}

func (f *fakeChain) send(kind, from, to string, amount decimal.Decimal) (string, error) {
	hash := fmt.Sprintf("0x%064x", len(f.sends)+1)
	if f.sendErr != nil && !f.sendErrHash {
		return "", f.sendErr
	}
	f.sends = append(f.sends, sentTx{Kind: kind, From: from, To: to, Amount: amount, Hash: hash})
	if f.timeoutTo[to] {
		f.unconfirm[hash] = true
	}
	if f.sendErr != nil {
		return hash, f.sendErr
	}
	return hash, nil
}

func (f *fakeChain) SendNative(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := f.send("native", f.gasWallet, to, amount)
	if err == nil {
		f.native[to] = f.native[to].Add(amount)
	}
	return hash, err
}

func (f *fakeChain) SendToken(ctx context.Context, from *wallet.Keypair, to string, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if from == nil || from.ECDSA() == nil {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, "sender key is not available", nil)
	}
	hash, err := f.send("token", from.Address, to, amount)
	if err == nil {
		f.token[from.Address] = f.token[from.Address].Sub(amount)
		f.token[to] = f.token[to].Add(amount)
	}
	return hash, err
}

func (f *fakeChain) WaitForConfirmation(_ context.Context, hash string, _ int, _ time.Duration) (bool, error) {
	if f.onConfirm != nil {
		f.onConfirm()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return false, f.confirmErr
	}
	return !f.unconfirm[hash], nil
}

func (f *fakeChain) FindInboundTransfer(_ context.Context, _ string) (string, error) {
	return f.inbound, f.inboundErr
}

func (f *fakeChain) GasWalletAddress() string {
	return f.gasWallet
}

func (f *fakeChain) sent() []sentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentTx(nil), f.sends...)
}

type notified struct {
	Event   string
	OrderID string
	Status  model.Status
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notified
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event string, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notified{Event: event, OrderID: o.OrderID, Status: o.Status})
	return r.err
}

func (r *recordingNotifier) list() []notified {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notified(nil), r.events...)
}

func chainDown() error {
	return apierror.NewAPIError(apierror.ErrChainUnavailable, "eth_call failed", nil)
}

type testEnv struct {
	gate     *Gate
	store    *memStore
	chain    *fakeChain
	notifier *recordingNotifier
	redis    redis.UniversalClient
	mr       *miniredis.Miniredis
	cnf      *config.Configuration
	merchant string
	feeAddr  string
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		ProjectName:     "VexoGate",
		LegalDisclaimer: "technical bridge",
		Chain: config.ChainConfig{
			ChainID:           137,
			TokenSymbol:       "USDC",
			RequestTimeoutSec: 1,
			ExplorerURL:       "https://polygonscan.com",
		},
		GasStation: config.GasStationConfig{
			InjectionAmount: decimal.RequireFromString("0.03"),
			MinGasFloor:     decimal.RequireFromString("0.01"),
		},
		Fee: config.FeeConfig{
			WalletAddress: randomAddress(),
			Percentage:    decimal.RequireFromString("2.5"),
			Minimum:       decimal.NewFromInt(1),
		},
		Security: config.SecurityConfig{
			ManualApprovalThreshold: decimal.NewFromInt(500),
		},
		Worker: config.WorkerConfig{
			MaxOrdersPerCycle:     50,
			ConfirmationAttempts:  3,
			OrderLockTimeoutSec:   30,
			GasStationLockWaitSec: 1,
			WebhookQueue:          "webhook_queue",
			ScanQueue:             "scan_queue",
			ScanInterval:          "1m",
		},
		Providers: config.ProviderConfig{
			Default: "transak",
			URLs: map[string]string{
				"transak": "https://global.transak.com",
				"moonpay": "https://buy.moonpay.com",
			},
		},
	}
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		store:    newMemStore(),
		chain:    newFakeChain(),
		notifier: &recordingNotifier{},
		redis:    client,
		mr:       mr,
		cnf:      testConfig(),
		merchant: randomAddress(),
	}
	env.feeAddr = env.cnf.Fee.WalletAddress

	gate, err := NewGate(env.store, env.chain, client, env.cnf, append([]Option{WithNotifier(env.notifier)}, opts...)...)
	require.NoError(t, err)
	env.gate = gate
	return env
}

// newOrder stores an order with a real wallet in status. A positive received amount is
// recorded on the order and credited to its wallet.
func (e *testEnv) newOrder(t *testing.T, status model.Status, fiat, received string) *model.Order {
	t.Helper()
	kp, err := wallet.Generate()
	require.NoError(t, err)

	amount := decimal.RequireFromString(fiat)
	o := &model.Order{
		OrderID:         model.GenerateUUIDWithSuffix("order"),
		MerchantOrderID: gofakeit.UUID(),
		DomainOrigin:    gofakeit.DomainName(),
		CallbackURL:     gofakeit.URL(),
		ProviderSlug:    "transak",
		FiatCurrency:    "USD",
		FiatAmount:      amount,
		WalletAddress:   kp.Address,
		PrivateKey:      kp.PrivateKeyHex(),
		MerchantWallet:  e.merchant,
		Fee:             model.CalculateFee(amount, e.cnf.Fee.Percentage, e.cnf.Fee.Minimum),
		Status:          status,
		CreatedAt:       time.Now().Add(-time.Duration(len(e.store.orders)+1) * time.Minute),
	}
	if received != "" {
		r := decimal.RequireFromString(received)
		e.chain.token[o.WalletAddress] = r
		if status != model.StatusWaitingPayment {
			o.ReceivedAmount = decimal.NullDecimal{Decimal: r, Valid: true}
		}
	}
	e.store.put(o)
	return o
}

// tick loads the order fresh from the store and runs one batch over it.
func (e *testEnv) tick(t *testing.T, ids ...string) BatchResult {
	t.Helper()
	orders := make([]*model.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, e.store.get(t, id))
	}
	return e.gate.ProcessBatch(context.Background(), orders)
}

func randomAddress() string {
	kp, err := wallet.Generate()
	if err != nil {
		panic(err)
	}
	defer kp.Zero()
	return kp.Address
}
