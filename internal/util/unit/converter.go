/*
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package unit

import (
	"fmt"
	"strings"
)

// Conversion represents a unit conversion rule for one metric
type Conversion struct {
	Field      string
	OriginUnit string
	NewUnit    string
}

// ParseConversion parses a unit conversion string
// Format: "fieldName=originUnit->newUnit"
// Example: "throughput=B/s->MB/s"
func ParseConversion(unitStr string) (*Conversion, error) {
	parts := strings.Split(unitStr, "=")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid unit conversion format: %s, expected 'fieldName=originUnit->newUnit'", unitStr)
	}

	fieldName := strings.TrimSpace(parts[0])
	conversionPart := strings.TrimSpace(parts[1])

	unitParts := strings.Split(conversionPart, "->")
	if len(unitParts) != 2 {
		return nil, fmt.Errorf("invalid unit conversion format: %s, expected 'originUnit->newUnit'", conversionPart)
	}

	return &Conversion{
		Field:      fieldName,
		OriginUnit: strings.TrimSpace(unitParts[0]),
		NewUnit:    strings.TrimSpace(unitParts[1]),
	}, nil
}

// Apply converts value from the rule's origin unit to its new unit
func (c *Conversion) Apply(value float64) (float64, error) {
	return Convert(value, c.OriginUnit, c.NewUnit)
}

// byte units, base unit is B (byte)
var byteUnits = map[string]float64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
	"TB": 1024 * 1024 * 1024 * 1024,
	"PB": 1024 * 1024 * 1024 * 1024 * 1024,
	// Binary versions
	"KIB": 1024,
	"MIB": 1024 * 1024,
	"GIB": 1024 * 1024 * 1024,
	"TIB": 1024 * 1024 * 1024 * 1024,
	"PIB": 1024 * 1024 * 1024 * 1024 * 1024,
}

// bit units, base unit is bit
var bitUnits = map[string]float64{
	"BIT":  1,
	"KBIT": 1000,
	"MBIT": 1000 * 1000,
	"GBIT": 1000 * 1000 * 1000,
	"TBIT": 1000 * 1000 * 1000 * 1000,
	"PBIT": 1000 * 1000 * 1000 * 1000 * 1000,
}

// time units, base unit is ns (nanosecond)
var timeUnits = map[string]float64{
	"NS":  1,
	"US":  1000,
	"MS":  1000_000,
	"S":   1000_000_000,
	"MIN": 60_000_000_000,
	"H":   3600_000_000_000,
	"D":   86_400_000_000_000,
}

// Convert converts a value from origin unit to new unit.
// Supports bytes, bits and time units, and rates of them such as "KB/s" to "MB/s".
func Convert(value float64, originUnit, newUnit string) (float64, error) {
	originUnit = strings.ToUpper(strings.TrimSpace(originUnit))
	newUnit = strings.ToUpper(strings.TrimSpace(newUnit))

	if originUnit == newUnit {
		return value, nil
	}

	// rates convert through their numerators when the denominators agree
	originNum, originDen, originRate := strings.Cut(originUnit, "/")
	newNum, newDen, newRate := strings.Cut(newUnit, "/")
	if originRate || newRate {
		if !originRate || !newRate || originDen != newDen {
			return 0, fmt.Errorf("unsupported unit conversion from %s to %s", originUnit, newUnit)
		}
		return Convert(value, originNum, newNum)
	}

	for _, units := range []map[string]float64{byteUnits, bitUnits, timeUnits} {
		originFactor, originOk := units[originUnit]
		newFactor, newOk := units[newUnit]
		if originOk && newOk {
			return value * originFactor / newFactor, nil
		}
	}

	// one byte is eight bits
	if originFactor, ok := byteUnits[originUnit]; ok {
		if newFactor, ok := bitUnits[newUnit]; ok {
			return value * originFactor * 8 / newFactor, nil
		}
	}
	if originFactor, ok := bitUnits[originUnit]; ok {
		if newFactor, ok := byteUnits[newUnit]; ok {
			return value * originFactor / 8 / newFactor, nil
		}
	}

	return 0, fmt.Errorf("unsupported unit conversion from %s to %s", originUnit, newUnit)
}
