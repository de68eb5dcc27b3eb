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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		wantAddr     string
		wantPassword string
		wantTLS      bool
		wantErr      bool
	}{
		{name: "docker style", url: "redis:6379", wantAddr: "redis:6379"},
		{name: "url with password", url: "redis://:password123@localhost:6379", wantAddr: "localhost:6379", wantPassword: "password123"},
		{name: "bare password", url: "redis://secret@localhost:6379", wantAddr: "localhost:6379", wantPassword: "secret"},
		{name: "tls url", url: "rediss://:secret@cache.example.com:6380", wantAddr: "cache.example.com:6380", wantPassword: "secret", wantTLS: true},
		{name: "empty", url: "  ", wantErr: true},
		{name: "bad scheme", url: "http://localhost:6379", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRedisURL(tt.url, false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, got.Addr)
			assert.Equal(t, tt.wantPassword, got.Password)
			assert.Equal(t, tt.wantTLS, got.TLSConfig != nil)
		})
	}
}

func TestParseRedisURL_SkipTLSVerify(t *testing.T) {
	got, err := ParseRedisURL("rediss://:secret@cache.example.com:6380", true)
	require.NoError(t, err)
	require.NotNil(t, got.TLSConfig)
	assert.True(t, got.TLSConfig.InsecureSkipVerify)
}

func TestAsynqOpt(t *testing.T) {
	opt, err := AsynqOpt("redis://:pw@localhost:6379/2", false)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 2, opt.DB)

	_, err = AsynqOpt("", false)
	assert.Error(t, err)
}

func TestSplitAddresses(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, SplitAddresses(" a:1, ,b:2 "))
	assert.Nil(t, SplitAddresses(""))
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(nil, false)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client, err := NewRedisClient([]string{mr.Addr()}, false)
	require.NoError(t, err)
	defer client.Close()

	require.NotNil(t, client.Client())
	assert.NoError(t, client.Client().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient([]string{addr}, false)
	assert.Error(t, err)
}
