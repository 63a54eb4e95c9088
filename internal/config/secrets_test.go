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

package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	harvestertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/crypto"
)

const testSecretKey = "0123456789abcdef"

func TestUnifiedLoaderRevealsSealedPasswords(t *testing.T) {
	sealer, err := crypto.NewSealer(testSecretKey)
	require.NoError(t, err)
	sealed, err := sealer.Seal("s3cret")
	require.NoError(t, err)

	t.Setenv(EnvSecretKey, testSecretKey)
	path := writeConfig(t, fmt.Sprintf(`
harvester:
  devices:
    - id: array-01
      vendor: simulator
      password: "%s"
    - id: array-02
      vendor: simulator
      password: plain
`, sealed))

	cfg, err := NewUnifiedConfigLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Harvester.Devices[0].Password)
	assert.Equal(t, "plain", cfg.Harvester.Devices[1].Password)
}

func TestRevealSecretsWithoutKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Harvester.Devices = []cfgtypes.DeviceConfig{{ID: "array-01", Password: "plain"}}
	require.NoError(t, RevealSecrets(cfg, &crypto.Sealer{}))

	sealer, err := crypto.NewSealer(testSecretKey)
	require.NoError(t, err)
	sealed, err := sealer.Seal("s3cret")
	require.NoError(t, err)

	cfg.Harvester.Devices = []cfgtypes.DeviceConfig{{ID: "array-01", Password: sealed}}
	err = RevealSecrets(cfg, &crypto.Sealer{})
	assert.ErrorIs(t, err, harvestertypes.InvalidDeviceConfig)
	assert.ErrorIs(t, err, crypto.ErrSecretKeyNotSet)

	assert.ErrorIs(t, RevealSecrets(nil, sealer), harvestertypes.HarvesterConfigIsNil)
}
