// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package crypto keeps device credentials out of plain text config files.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	sealedPrefix = "ENC("
	sealedSuffix = ")"
	keySize      = 16
)

var (
	ErrSecretKeyNotSet = errors.New("secret key not set")
	ErrInvalidKey      = errors.New("secret key must be 16 bytes")
	ErrInvalidSealed   = errors.New("invalid sealed value")
)

// Sealer decrypts ENC(...) wrapped values with an AES-128 key. The key doubles
// as the CBC IV, which keeps the format compatible with the HertzBeat manager.
type Sealer struct {
	mu  sync.RWMutex
	key []byte
}

var defaultSealer = &Sealer{}

// Default returns the process wide sealer
func Default() *Sealer {
	return defaultSealer
}

func NewSealer(key string) (*Sealer, error) {
	s := &Sealer{}
	if err := s.SetKey(key); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sealer) SetKey(key string) error {
	if key != "" && len(key) != keySize {
		return fmt.Errorf("%w, got %d", ErrInvalidKey, len(key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = []byte(key)
	return nil
}

func (s *Sealer) HasKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.key) > 0
}

// IsSealed reports whether value is wrapped as ENC(...)
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix) && strings.HasSuffix(value, sealedSuffix)
}

// Reveal returns value unchanged unless it is sealed, then its plain text
func (s *Sealer) Reveal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	key := s.currentKey()
	if key == nil {
		return "", ErrSecretKeyNotSet
	}

	payload := strings.TrimSuffix(strings.TrimPrefix(value, sealedPrefix), sealedSuffix)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSealed, err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d", ErrInvalidSealed, len(data))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, key).CryptBlocks(plain, data)

	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Seal wraps plain as ENC(...), the inverse of Reveal
func (s *Sealer) Seal(plain string) (string, error) {
	key := s.currentKey()
	if key == nil {
		return "", ErrSecretKeyNotSet
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	data := pad([]byte(plain))
	cipher.NewCBCEncrypter(block, key).CryptBlocks(data, data)

	return sealedPrefix + base64.StdEncoding.EncodeToString(data) + sealedSuffix, nil
}

func (s *Sealer) currentKey() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.key) == 0 {
		return nil
	}
	return s.key
}

// pad applies PKCS#7 padding
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidSealed)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrInvalidSealed)
		}
	}
	return data[:len(data)-n], nil
}
