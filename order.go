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
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/vexogate/vexogate/internal/apierror"
	"github.com/vexogate/vexogate/model"
	"github.com/vexogate/vexogate/wallet"
)

const paymentNetwork = "polygon"

// OrderRequest is what a merchant submits to open a payment.
type OrderRequest struct {
	DomainOrigin    string
	MerchantOrderID string
	CallbackURL     string
	ClientEmail     string
	ProviderSlug    string
	FiatCurrency    string
	FiatAmount      decimal.Decimal
	MerchantWallet  string
}

// Checkout is the result of CreateOrder: the stored order plus where the customer pays.
type Checkout struct {
	Order      *model.Order
	PaymentURL string
	Disclaimer string
}

// Transactions links each recorded hash of an order on the block explorer.
type Transactions struct {
	Incoming       string `json:"incoming,omitempty"`
	GasInjection   string `json:"gas_injection,omitempty"`
	MerchantPayout string `json:"merchant_payout,omitempty"`
	FeePayout      string `json:"fee_payout,omitempty"`
}

// CreateOrder opens an order in waiting_payment with a freshly generated wallet.
// The returned order never carries the private key.
func (g *Gate) CreateOrder(ctx context.Context, req OrderRequest) (*Checkout, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "CreateOrder")
	defer span.End()

	if !wallet.ValidateAddress(req.MerchantWallet) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid merchant wallet address", nil)
	}
	if !req.FiatAmount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Fiat amount must be positive", nil)
	}
	provider := strings.ToLower(strings.TrimSpace(req.ProviderSlug))
	if provider == "" {
		provider = g.config.Providers.Default
	}
	if _, ok := g.config.Providers.URLs[provider]; !ok {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unsupported payment provider %q", provider), nil)
	}
	merchantWallet, err := wallet.ToChecksumAddress(req.MerchantWallet)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid merchant wallet address", nil)
	}

	kp, err := wallet.Generate()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to generate order wallet", err)
	}
	defer kp.Zero()

	now := g.now().UTC()
	o := &model.Order{
		OrderID:         model.GenerateUUIDWithSuffix("order"),
		MerchantOrderID: req.MerchantOrderID,
		DomainOrigin:    req.DomainOrigin,
		CallbackURL:     req.CallbackURL,
		ClientEmail:     req.ClientEmail,
		ProviderSlug:    provider,
		FiatCurrency:    strings.ToUpper(req.FiatCurrency),
		FiatAmount:      req.FiatAmount,
		WalletAddress:   kp.Address,
		PrivateKey:      kp.PrivateKeyHex(),
		MerchantWallet:  merchantWallet,
		Fee:             model.CalculateFee(req.FiatAmount, g.config.Fee.Percentage, g.config.Fee.Minimum),
		Status:          model.StatusWaitingPayment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = g.datasource.CreateOrder(ctx, o)
	o.PrivateKey = ""
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id":       o.OrderID,
		"wallet_address": o.WalletAddress,
		"provider":       provider,
		"fiat_amount":    o.FiatAmount.String(),
	}).Info("Order created")

	paymentURL, err := g.PaymentURL(o)
	if err != nil {
		return nil, err
	}
	return &Checkout{Order: o, PaymentURL: paymentURL, Disclaimer: g.config.LegalDisclaimer}, nil
}

// GetOrder returns the order snapshot without its key.
func (g *Gate) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "GetOrder")
	defer span.End()

	o, err := g.datasource.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.PrivateKey = ""
	return o, nil
}

// ListOrders returns orders in status, newest first, without keys.
func (g *Gate) ListOrders(ctx context.Context, status model.Status, limit, offset int) ([]*model.Order, error) {
	return g.datasource.GetOrdersByStatus(ctx, status, limit, offset)
}

// PaymentURL builds the on-ramp checkout link of the order's provider.
func (g *Gate) PaymentURL(o *model.Order) (string, error) {
	base, ok := g.config.Providers.URLs[o.ProviderSlug]
	if !ok {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unsupported payment provider %q", o.ProviderSlug), nil)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Invalid provider URL", err)
	}

	q := u.Query()
	q.Set("walletAddress", o.WalletAddress)
	q.Set("fiatCurrency", o.FiatCurrency)
	q.Set("fiatAmount", o.FiatAmount.String())
	q.Set("cryptoCurrency", g.config.Chain.TokenSymbol)
	q.Set("network", paymentNetwork)
	q.Set("email", o.ClientEmail)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExplorerLinks maps the recorded hashes of o to explorer URLs.
func (g *Gate) ExplorerLinks(o *model.Order) Transactions {
	chain := g.config.Chain
	return Transactions{
		Incoming:       chain.TxURL(o.TxIDIn),
		GasInjection:   chain.TxURL(o.TxIDGas),
		MerchantPayout: chain.TxURL(o.TxIDOutMerchant),
		FeePayout:      chain.TxURL(o.TxIDOutFee),
	}
}
