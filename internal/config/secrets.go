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
	"os"

	"github.com/hashicorp/go-multierror"

	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	harvestertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/crypto"
)

// EnvSecretKey holds the AES key that opens ENC(...) device passwords
const EnvSecretKey = "HARVESTER_SECRET_KEY"

// RevealSecrets replaces sealed device passwords with their plain text.
// The device slice is copied, cfg is otherwise modified in place.
func RevealSecrets(cfg *cfgtypes.HarvesterConfig, sealer *crypto.Sealer) error {
	if cfg == nil {
		return harvestertypes.HarvesterConfigIsNil
	}

	devices := make([]cfgtypes.DeviceConfig, len(cfg.Harvester.Devices))
	copy(devices, cfg.Harvester.Devices)

	var result *multierror.Error
	for i := range devices {
		plain, err := sealer.Reveal(devices[i].Password)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: password of device %s: %w", harvestertypes.InvalidDeviceConfig, devices[i].ID, err))
			continue
		}
		devices[i].Password = plain
	}
	cfg.Harvester.Devices = devices

	return result.ErrorOrNil()
}

// secretSealer returns the default sealer keyed from the environment
func secretSealer() (*crypto.Sealer, error) {
	sealer := crypto.Default()
	if key := os.Getenv(EnvSecretKey); key != "" {
		if err := sealer.SetKey(key); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvSecretKey, err)
		}
	}
	return sealer, nil
}

func revealFromEnv(cfg *cfgtypes.HarvesterConfig) error {
	sealer, err := secretSealer()
	if err != nil {
		return err
	}
	return RevealSecrets(cfg, sealer)
}
