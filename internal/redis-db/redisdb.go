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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 500 * time.Millisecond

// Redis wraps the universal client shared by the order locks and the gas-station lock.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// ParseRedisURL accepts host:port, redis:// and rediss:// forms. A bare
// password before '@' is treated as the default user's password.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis url is empty")
	}

	if !strings.Contains(rawURL, "//") && !strings.Contains(rawURL, "@") {
		return &redis.Options{Addr: rawURL}, nil
	}

	for _, scheme := range []string{"redis://", "rediss://"} {
		if !strings.HasPrefix(rawURL, scheme) {
			continue
		}
		rest := strings.TrimPrefix(rawURL, scheme)
		if auth, host, ok := strings.Cut(rest, "@"); ok && !strings.Contains(auth, ":") {
			rawURL = fmt.Sprintf("%s:%s@%s", scheme, auth, host)
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true,
		}
	}

	return opts, nil
}

// AsynqOpt converts the configured DSN into asynq connection options for the
// webhook queue and the scan scheduler.
func AsynqOpt(rawURL string, skipTLSVerify bool) (asynq.RedisClientOpt, error) {
	opts, err := ParseRedisURL(rawURL, skipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// NewRedisClient connects to a single instance, or to a cluster when more
// than one address is given, and pings it before returning.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	client, err := newUniversalClient(addresses, skipTLSVerify)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{addresses: addresses, client: client}, nil
}

func newUniversalClient(addresses []string, skipTLSVerify bool) (redis.UniversalClient, error) {
	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}

	cluster := &redis.UniversalOptions{}
	for _, addr := range addresses {
		opts, err := ParseRedisURL(addr, skipTLSVerify)
		if err != nil {
			return nil, err
		}
		cluster.Addrs = append(cluster.Addrs, opts.Addr)
		if cluster.Password == "" {
			cluster.Password = opts.Password
		}
		if opts.TLSConfig != nil && cluster.TLSConfig == nil {
			cluster.TLSConfig = opts.TLSConfig
		}
	}
	return redis.NewUniversalClient(cluster), nil
}

// SplitAddresses turns a comma separated DSN list into addresses.
func SplitAddresses(dsn string) []string {
	var out []string
	for _, part := range strings.Split(dsn, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) Close() error {
	return r.client.Close()
}
