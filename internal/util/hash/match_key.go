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

package hash

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MatchKey returns a stable content hash correlating polled and trap
// delivered instances of the same fault. The message is hashed when present,
// otherwise the alert name.
func MatchKey(message, name string) string {
	content := strings.TrimSpace(message)
	if content == "" {
		content = strings.TrimSpace(name)
	}
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}

// Key64 hashes the given parts into one 64 bit key, parts are separated so
// ("ab", "c") and ("a", "bc") differ.
func Key64(parts ...string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
