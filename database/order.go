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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/vexogate/vexogate/internal/apierror"
	"github.com/vexogate/vexogate/model"
	"go.opentelemetry.io/otel"
)

const orderColumns = `id, order_id, merchant_order_id, domain_origin, callback_url, client_email,
	provider_slug, fiat_currency, fiat_amount, wallet_address, private_key, merchant_wallet,
	fee, received_amount, gas_cost, txid_in, txid_gas, txid_out_merchant, txid_out_fee,
	status, last_error, manual_override, created_at, updated_at`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (d Datasource) sealKey(o *model.Order) (string, error) {
	if d.tokenizer == nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Encryption key is not configured", nil)
	}
	sealed, err := d.tokenizer.Tokenize(o.PrivateKey, o.OrderID)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to seal wallet key", err)
	}
	return sealed, nil
}

func (d Datasource) openKey(o *model.Order, sealed string) error {
	if d.tokenizer == nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Encryption key is not configured", nil)
	}
	key, err := d.tokenizer.Detokenize(sealed, o.OrderID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to open wallet key for order %s", o.OrderID), err)
	}
	o.PrivateKey = key
	return nil
}

func (d Datasource) CreateOrder(ctx context.Context, o *model.Order) error {
	ctx, span := otel.Tracer("Order").Start(ctx, "Saving order to db")
	defer span.End()

	sealed, err := d.sealKey(o)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO vexogate.orders (
			order_id, merchant_order_id, domain_origin, callback_url, client_email,
			provider_slug, fiat_currency, fiat_amount, wallet_address, private_key,
			merchant_wallet, fee, status, manual_override, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`, o.OrderID, o.MerchantOrderID, o.DomainOrigin, o.CallbackURL, nullString(o.ClientEmail),
		o.ProviderSlug, o.FiatCurrency, o.FiatAmount, o.WalletAddress, sealed,
		o.MerchantWallet, o.Fee, string(o.Status), o.ManualOverride, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		span.RecordError(err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, "Order with this ID or wallet already exists", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create order", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder reads one row in orderColumns order and returns the sealed key separately.
func scanOrder(row rowScanner) (*model.Order, string, error) {
	var (
		o          model.Order
		sealed     string
		status     string
		email      sql.NullString
		txIn       sql.NullString
		txGas      sql.NullString
		txMerchant sql.NullString
		txFee      sql.NullString
		lastError  sql.NullString
	)

	err := row.Scan(
		&o.ID, &o.OrderID, &o.MerchantOrderID, &o.DomainOrigin, &o.CallbackURL, &email,
		&o.ProviderSlug, &o.FiatCurrency, &o.FiatAmount, &o.WalletAddress, &sealed, &o.MerchantWallet,
		&o.Fee, &o.ReceivedAmount, &o.GasCost, &txIn, &txGas, &txMerchant, &txFee,
		&status, &lastError, &o.ManualOverride, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, "", err
	}

	o.Status, err = model.ParseStatus(status)
	if err != nil {
		return nil, "", err
	}
	o.ClientEmail = email.String
	o.TxIDIn = txIn.String
	o.TxIDGas = txGas.String
	o.TxIDOutMerchant = txMerchant.String
	o.TxIDOutFee = txFee.String
	o.LastError = lastError.String
	return &o, sealed, nil
}

func (d Datasource) GetOrderByID(ctx context.Context, orderID string) (*model.Order, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "Fetching order from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM vexogate.orders WHERE order_id = $1`, orderID)
	o, sealed, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}

	if err := d.openKey(o, sealed); err != nil {
		return nil, err
	}
	return o, nil
}

// GetProcessableOrders returns up to limit orders in an active status, oldest first.
func (d Datasource) GetProcessableOrders(ctx context.Context, limit int) ([]*model.Order, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "Fetching processable orders from db")
	defer span.End()

	var active []string
	for _, s := range model.Statuses() {
		if s.IsProcessable() {
			active = append(active, string(s))
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM vexogate.orders
		WHERE status = ANY($1)
		ORDER BY created_at ASC
		LIMIT $2
	`, pq.Array(active), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve processable orders", err)
	}
	defer rows.Close()

	orders := []*model.Order{}
	for rows.Next() {
		o, sealed, err := scanOrder(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order data", err)
		}
		if err := d.openKey(o, sealed); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over orders", err)
	}
	return orders, nil
}

// GetOrdersByStatus lists orders without opening their keys.
func (d Datasource) GetOrdersByStatus(ctx context.Context, status model.Status, limit, offset int) ([]*model.Order, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "Listing orders by status")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM vexogate.orders
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve orders", err)
	}
	defer rows.Close()

	orders := []*model.Order{}
	for rows.Next() {
		o, _, err := scanOrder(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order data", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over orders", err)
	}
	return orders, nil
}

// UpdateOrder saves o only if its stored status still equals expected.
// Evidence slots and the received amount are write-once at the SQL level too:
// an already stored value is never replaced.
func (d Datasource) UpdateOrder(ctx context.Context, o *model.Order, expected model.Status) error {
	ctx, span := otel.Tracer("Order").Start(ctx, "Updating order")
	defer span.End()

	o.UpdatedAt = time.Now().UTC()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE vexogate.orders SET
			status = $3,
			received_amount = COALESCE(received_amount, $4),
			gas_cost = COALESCE(gas_cost, $5),
			txid_in = COALESCE(txid_in, $6),
			txid_gas = COALESCE(txid_gas, $7),
			txid_out_merchant = COALESCE(txid_out_merchant, $8),
			txid_out_fee = COALESCE(txid_out_fee, $9),
			last_error = $10,
			manual_override = $11,
			updated_at = $12
		WHERE order_id = $1 AND status = $2
	`, o.OrderID, string(expected), string(o.Status), o.ReceivedAmount, o.GasCost,
		nullString(o.TxIDIn), nullString(o.TxIDGas), nullString(o.TxIDOutMerchant), nullString(o.TxIDOutFee),
		nullString(o.LastError), o.ManualOverride, o.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Order %s is no longer in status %s", o.OrderID, expected), nil)
	}
	return nil
}
