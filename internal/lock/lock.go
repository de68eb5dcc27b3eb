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

package redlock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	orderKeyPrefix      = "order:"
	gasStationKeyPrefix = "gas-station:"

	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock is already held")

// Locker is a single-key redis lock. The value identifies the holder so that
// only it can release or extend the lock.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

// NewOrderLocker guards a single order against concurrent workers and operators.
func NewOrderLocker(client redis.UniversalClient, orderID string) *Locker {
	return NewLocker(client, OrderKey(orderID), uuid.NewString())
}

// NewGasStationLocker serializes sends from the operator wallet across processes.
func NewGasStationLocker(client redis.UniversalClient, address string) *Locker {
	return NewLocker(client, GasStationKey(address), uuid.NewString())
}

func OrderKey(orderID string) string {
	return orderKeyPrefix + orderID
}

func GasStationKey(address string) string {
	return gasStationKeyPrefix + strings.ToLower(address)
}

func (l *Locker) Key() string {
	return l.key
}

func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("lock for key %s: %w", l.key, ErrLockHeld)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// WaitLock retries Lock with jitter until it succeeds, waitTimeout passes or
// ctx is done. Transport errors are returned immediately.
func (l *Locker) WaitLock(ctx context.Context, lockTimeout, waitTimeout time.Duration) error {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		err := l.Lock(ctx, lockTimeout)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(10+rand.Intn(90)) * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to acquire lock for key %s within the wait timeout: %w", l.key, ErrLockHeld)
}
