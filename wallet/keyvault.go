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
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidPrivateKey is returned by FromPrivateKey. It never carries the rejected input.
var ErrInvalidPrivateKey = errors.New("invalid private key")

// Keypair is a secp256k1 key pair with its derived address.
// The private scalar is only reachable through PrivateKeyHex and ECDSA, and is never
// printed or marshalled.
type Keypair struct {
	Address    string
	publicKey  *ecdsa.PublicKey
	privateKey *ecdsa.PrivateKey
}

// Generate creates a keypair from a random scalar drawn from crypto/rand.
func Generate() (*Keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newKeypair(key), nil
}

// FromPrivateKey rebuilds a keypair from a hex encoded private key. The 0x prefix is optional.
func FromPrivateKey(hexKey string) (*Keypair, error) {
	hexKey = strings.TrimSpace(hexKey)
	if strings.HasPrefix(hexKey, "0x") || strings.HasPrefix(hexKey, "0X") {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return newKeypair(key), nil
}

func newKeypair(key *ecdsa.PrivateKey) *Keypair {
	return &Keypair{
		Address:    DeriveAddress(&key.PublicKey),
		publicKey:  &key.PublicKey,
		privateKey: key,
	}
}

// PublicKeyHex returns the uncompressed public key, 0x04 prefixed.
func (k *Keypair) PublicKeyHex() string {
	return hexutil.Encode(crypto.FromECDSAPub(k.publicKey))
}

// PrivateKeyHex returns the 0x prefixed private key for the secret store.
// It returns an empty string once the keypair has been zeroed.
func (k *Keypair) PrivateKeyHex() string {
	if k.privateKey == nil {
		return ""
	}
	return hexutil.Encode(crypto.FromECDSA(k.privateKey))
}

// ECDSA exposes the signing key. It is nil after Zero.
func (k *Keypair) ECDSA() *ecdsa.PrivateKey {
	return k.privateKey
}

// Zero clears the private scalar. The address and public key stay usable.
func (k *Keypair) Zero() {
	if k.privateKey == nil {
		return
	}
	words := k.privateKey.D.Bits()
	for i := range words {
		words[i] = 0
	}
	k.privateKey.D.SetInt64(0)
	k.privateKey = nil
}

func (k Keypair) String() string {
	return k.Address
}

func (k Keypair) GoString() string {
	return fmt.Sprintf("wallet.Keypair{Address:%q}", k.Address)
}

func (k Keypair) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Address   string `json:"address"`
		PublicKey string `json:"public_key"`
	}{
		Address:   k.Address,
		PublicKey: k.PublicKeyHex(),
	})
}
