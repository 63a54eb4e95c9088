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

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef"

func TestSealAndReveal(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	for _, plain := range []string{"", "admin", "exactly16bytes!!", "p@ss wörd"} {
		sealed, err := s.Seal(plain)
		require.NoError(t, err)
		assert.True(t, IsSealed(sealed))

		got, err := s.Reveal(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestRevealPlainTextPassesThrough(t *testing.T) {
	got, err := (&Sealer{}).Reveal("plain-password")
	require.NoError(t, err)
	assert.Equal(t, "plain-password", got)
}

func TestRevealErrors(t *testing.T) {
	_, err := (&Sealer{}).Reveal("ENC(AAAA)")
	assert.ErrorIs(t, err, ErrSecretKeyNotSet)

	s, err := NewSealer(testKey)
	require.NoError(t, err)

	_, err = s.Reveal("ENC(not base64!)")
	assert.ErrorIs(t, err, ErrInvalidSealed)

	_, err = s.Reveal("ENC(AAAA)")
	assert.ErrorIs(t, err, ErrInvalidSealed)

	other, err := NewSealer("fedcba9876543210")
	require.NoError(t, err)
	sealed, err := other.Seal("secret")
	require.NoError(t, err)
	if got, err := s.Reveal(sealed); err == nil {
		// a wrong key rarely yields valid padding, never the plain text
		assert.NotEqual(t, "secret", got)
	}
}

func TestSetKey(t *testing.T) {
	_, err := NewSealer("short")
	assert.ErrorIs(t, err, ErrInvalidKey)

	s := &Sealer{}
	assert.False(t, s.HasKey())
	require.NoError(t, s.SetKey(testKey))
	assert.True(t, s.HasKey())
	require.NoError(t, s.SetKey(""))
	assert.False(t, s.HasKey())
}
