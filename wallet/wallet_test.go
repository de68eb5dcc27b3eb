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

package wallet

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToChecksumAddress(t *testing.T) {
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}

	for _, want := range vectors {
		t.Run(want, func(t *testing.T) {
			got, err := ToChecksumAddress(strings.ToLower(want))
			require.NoError(t, err)
			assert.Equal(t, want, got)

			upper, err := ToChecksumAddress("0x" + strings.ToUpper(want[2:]))
			require.NoError(t, err)
			assert.Equal(t, want, upper)
		})
	}
}

func TestToChecksumAddress_Invalid(t *testing.T) {
	_, err := ToChecksumAddress("0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{name: "checksummed", address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", want: true},
		{name: "all lowercase", address: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", want: true},
		{name: "all uppercase", address: "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", want: true},
		{name: "lowercase with wrong checksum is still accepted", address: "0x0000000000000000000000000000000000000abc", want: true},
		{name: "mixed case with bad checksum", address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAEd", want: false},
		{name: "missing prefix", address: "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", want: false},
		{name: "uppercase prefix", address: "0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", want: false},
		{name: "too short", address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeA", want: false},
		{name: "too long", address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed00", want: false},
		{name: "non hex", address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeg", want: false},
		{name: "empty", address: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateAddress(tt.address))
		})
	}
}

func TestFromPrivateKey_KnownVector(t *testing.T) {
	kp, err := FromPrivateKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", kp.Address)
	assert.Equal(t, kp.Address, DeriveAddress(&kp.ECDSA().PublicKey))
	assert.Equal(t, "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", kp.PrivateKeyHex())
	assert.True(t, strings.HasPrefix(kp.PublicKeyHex(), "0x04"))
	assert.Len(t, kp.PublicKeyHex(), 2+130)

	withoutPrefix, err := FromPrivateKey("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, kp.Address, withoutPrefix.Address)
}

func TestFromPrivateKey_Invalid(t *testing.T) {
	secret := "0xnotakeynotakeynotakeynotakeynotakeynotakeynotakeynotakeynotake"
	_, err := FromPrivateKey(secret)
	require.ErrorIs(t, err, ErrInvalidPrivateKey)
	assert.NotContains(t, err.Error(), "notakey")

	_, err = FromPrivateKey("0x1234")
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestGenerate_AddressRoundTrip(t *testing.T) {
	for i := 0; i < 25; i++ {
		kp, err := Generate()
		require.NoError(t, err)

		assert.True(t, ValidateAddress(kp.Address), kp.Address)
		assert.Equal(t, DeriveAddress(&kp.ECDSA().PublicKey), kp.Address)

		restored, err := FromPrivateKey(kp.PrivateKeyHex())
		require.NoError(t, err)
		assert.Equal(t, kp.Address, restored.Address)
		assert.Equal(t, kp.PublicKeyHex(), restored.PublicKeyHex())
	}
}

func TestGenerate_Unique(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, b.Address)
}

func TestKeypair_NeverPrintsPrivateKey(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	secret := strings.TrimPrefix(kp.PrivateKeyHex(), "0x")

	for _, out := range []string{
		kp.String(),
		kp.GoString(),
		strings.ToLower(sprint(kp)),
	} {
		assert.NotContains(t, out, secret)
	}

	data, err := kp.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), secret)
	assert.Contains(t, string(data), kp.Address)
}

func TestKeypair_Zero(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	key := kp.ECDSA()

	kp.Zero()

	assert.Nil(t, kp.ECDSA())
	assert.Empty(t, kp.PrivateKeyHex())
	assert.Equal(t, 0, key.D.Sign())
	assert.True(t, ValidateAddress(kp.Address))

	kp.Zero()
}

func sprint(v interface{}) string {
	return fmt.Sprintf("%v %+v %#v", v, v, v)
}
