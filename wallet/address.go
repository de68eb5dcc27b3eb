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
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ErrInvalidAddress is returned when a string is not a 20-byte hex address.
var ErrInvalidAddress = errors.New("invalid address")

// DeriveAddress returns the EIP-55 checksummed address for a secp256k1 public key.
func DeriveAddress(pub *ecdsa.PublicKey) string {
	return crypto.PubkeyToAddress(*pub).Hex()
}

// ToChecksumAddress converts a 0x-prefixed 40 hex character address into its EIP-55 form.
func ToChecksumAddress(address string) (string, error) {
	if !addressPattern.MatchString(address) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}

// ValidateAddress reports whether s is a usable address.
// Mixed-case input must match its checksum exactly. All-lowercase and all-uppercase
// input is accepted without checksum verification.
func ValidateAddress(s string) bool {
	if !addressPattern.MatchString(s) {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return s == common.HexToAddress(s).Hex()
}
