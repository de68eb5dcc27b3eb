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

package tokenization

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789ABCDEF0123456789ABCDEF")

func TestNewTokenizationService(t *testing.T) {
	service, err := NewTokenizationService(testKey)
	require.NoError(t, err)
	if !bytes.Equal(service.key, testKey) {
		t.Errorf("Expected key %v, got %v", testKey, service.key)
	}

	for _, size := range []int{0, 8, 31, 33} {
		_, err := NewTokenizationService(make([]byte, size))
		assert.ErrorIs(t, err, ErrInvalidKey, "size %d", size)
	}
}

func TestNewTokenizationService_CopiesKey(t *testing.T) {
	key := append([]byte(nil), testKey...)
	service, err := NewTokenizationService(key)
	require.NoError(t, err)

	key[0] = 'X'
	assert.Equal(t, byte('0'), service.key[0])
}

func TestTokenizeDetokenize(t *testing.T) {
	service, err := NewTokenizationService(testKey)
	require.NoError(t, err)

	testData := []string{
		"0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		"",
	}

	for _, original := range testData {
		token, err := service.Tokenize(original, "order_1")
		require.NoError(t, err)
		assert.True(t, IsToken(token))
		assert.NotContains(t, token, "4c0883a6")

		_, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(token, tokenPrefix))
		assert.NoError(t, err, "token body must be base64")

		decrypted, err := service.Detokenize(token, "order_1")
		require.NoError(t, err)
		assert.Equal(t, original, decrypted)
	}
}

func TestTokenize_RandomNonce(t *testing.T) {
	service, err := NewTokenizationService(testKey)
	require.NoError(t, err)

	first, err := service.Tokenize("secret", "order_1")
	require.NoError(t, err)
	second, err := service.Tokenize("secret", "order_1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDetokenize_WrongBinding(t *testing.T) {
	service, err := NewTokenizationService(testKey)
	require.NoError(t, err)

	token, err := service.Tokenize("secret", "order_1")
	require.NoError(t, err)

	_, err = service.Detokenize(token, "order_2")
	assert.Error(t, err)
}

func TestDetokenize_WrongKey(t *testing.T) {
	service, err := NewTokenizationService(testKey)
	require.NoError(t, err)
	other, err := NewTokenizationService([]byte("FEDCBA9876543210FEDCBA9876543210"))
	require.NoError(t, err)

	token, err := service.Tokenize("secret", "order_1")
	require.NoError(t, err)

	_, err = other.Detokenize(token, "order_1")
	assert.Error(t, err)
}

func TestDetokenize_InvalidTokens(t *testing.T) {
	service, err := NewTokenizationService(testKey)
	require.NoError(t, err)

	_, err = service.Detokenize("0xdeadbeef", "order_1")
	assert.ErrorIs(t, err, ErrNotToken)

	_, err = service.Detokenize(tokenPrefix+"!!!not-base64!!!", "order_1")
	assert.Error(t, err)

	_, err = service.Detokenize(tokenPrefix+base64.StdEncoding.EncodeToString([]byte("short")), "order_1")
	assert.ErrorIs(t, err, ErrTokenTooShort)

	token, err := service.Tokenize("secret", "order_1")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, tokenPrefix))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = service.Detokenize(tokenPrefix+base64.StdEncoding.EncodeToString(raw), "order_1")
	assert.Error(t, err)
}
