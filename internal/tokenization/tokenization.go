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

// Package tokenization seals order wallet keys before they reach the database.
package tokenization

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// tokenPrefix marks a sealed value and its format version.
const tokenPrefix = "VG1:"

var (
	ErrInvalidKey    = errors.New("encryption key must be 16, 24 or 32 bytes")
	ErrNotToken      = errors.New("value is not a sealed token")
	ErrTokenTooShort = errors.New("token too short")
)

// TokenizationService converts secrets to opaque tokens and back using AES-GCM.
type TokenizationService struct {
	key []byte
}

// NewTokenizationService creates a new tokenization service.
//
// Parameters:
// - encryptionKey []byte: The AES key, 16, 24 or 32 bytes long.
//
// Returns:
// - *TokenizationService: A new instance of TokenizationService.
// - error: ErrInvalidKey if the key has the wrong length.
func NewTokenizationService(encryptionKey []byte) (*TokenizationService, error) {
	switch len(encryptionKey) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}
	key := make([]byte, len(encryptionKey))
	copy(key, encryptionKey)
	return &TokenizationService{key: key}, nil
}

// Tokenize seals value and binds the token to binding, usually the order id.
// A token produced for one binding does not open under another.
//
// Parameters:
// - value string: The secret to seal.
// - binding string: Additional authenticated data tying the token to its owner.
//
// Returns:
// - string: The sealed token.
// - error: An error if sealing fails.
func (s *TokenizationService) Tokenize(value, binding string) (string, error) {
	gcm, err := s.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(value), []byte(binding))
	return tokenPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Detokenize opens a token produced by Tokenize with the same binding.
//
// Parameters:
// - token string: The sealed token.
// - binding string: The binding used when the token was produced.
//
// Returns:
// - string: The original secret.
// - error: An error if the token is malformed, tampered with or bound elsewhere.
func (s *TokenizationService) Detokenize(token, binding string) (string, error) {
	if !IsToken(token) {
		return "", ErrNotToken
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, tokenPrefix))
	if err != nil {
		return "", err
	}

	gcm, err := s.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+gcm.Overhead() {
		return "", ErrTokenTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(binding))
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// IsToken reports whether value carries the sealed token prefix.
func IsToken(value string) bool {
	return strings.HasPrefix(value, tokenPrefix)
}

func (s *TokenizationService) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
