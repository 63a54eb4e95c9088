/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package simulator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// device option keys
const (
	OptionResources   = "resources"
	OptionShards      = "shards"
	OptionSampleStep  = "sample_step"
	OptionPageSize    = "page_size"
	OptionRetention   = "retention"
	OptionEventEvery  = "event_every"
	OptionSessionTTL  = "session_ttl"
	defaultResources  = "volume=vol-1,vol-2;controller=ctrl-a,ctrl-b;port=p0"
	defaultShards     = 2
	defaultSampleStep = time.Minute
	defaultPageSize   = 50
	defaultRetention  = 2 * time.Hour
	defaultEventEvery = 10 * time.Minute
	defaultSessionTTL = 30 * time.Minute
)

type options struct {
	resources  map[string][]string
	shards     int
	sampleStep time.Duration
	pageSize   int
	retention  time.Duration
	eventEvery time.Duration
	sessionTTL time.Duration
}

func parseOptions(raw map[string]string) (options, error) {
	opts := options{
		shards:     defaultShards,
		sampleStep: defaultSampleStep,
		pageSize:   defaultPageSize,
		retention:  defaultRetention,
		eventEvery: defaultEventEvery,
		sessionTTL: defaultSessionTTL,
	}

	resources := raw[OptionResources]
	if strings.TrimSpace(resources) == "" {
		resources = defaultResources
	}
	parsed, err := parseResources(resources)
	if err != nil {
		return opts, err
	}
	opts.resources = parsed

	if err := parseInt(raw, OptionShards, &opts.shards); err != nil {
		return opts, err
	}
	if err := parseInt(raw, OptionPageSize, &opts.pageSize); err != nil {
		return opts, err
	}
	for key, dst := range map[string]*time.Duration{
		OptionSampleStep: &opts.sampleStep,
		OptionRetention:  &opts.retention,
		OptionEventEvery: &opts.eventEvery,
		OptionSessionTTL: &opts.sessionTTL,
	} {
		if err := parseDuration(raw, key, dst); err != nil {
			return opts, err
		}
	}

	if opts.sampleStep < time.Second || opts.sampleStep%time.Second != 0 {
		return opts, fmt.Errorf("option %s must be a whole number of seconds", OptionSampleStep)
	}
	if opts.retention < opts.sampleStep {
		return opts, fmt.Errorf("option %s must cover at least one sample step", OptionRetention)
	}

	return opts, nil
}

// parseResources reads "volume=vol-1,vol-2;controller=ctrl-a"
func parseResources(value string) (map[string][]string, error) {
	resources := make(map[string][]string)
	for _, group := range strings.Split(value, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		resourceType, ids, ok := strings.Cut(group, "=")
		resourceType = strings.TrimSpace(resourceType)
		if !ok || resourceType == "" {
			return nil, fmt.Errorf("invalid resource group %q, expected type=id1,id2", group)
		}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				resources[resourceType] = append(resources[resourceType], id)
			}
		}
		if len(resources[resourceType]) == 0 {
			return nil, fmt.Errorf("resource group %q has no ids", resourceType)
		}
		sort.Strings(resources[resourceType])
	}
	return resources, nil
}

func parseInt(raw map[string]string, key string, dst *int) error {
	value := strings.TrimSpace(raw[key])
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("option %s must be a positive integer, got %q", key, value)
	}
	*dst = n
	return nil
}

func parseDuration(raw map[string]string, key string, dst *time.Duration) error {
	value := strings.TrimSpace(raw[key])
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fmt.Errorf("option %s must be a positive duration, got %q", key, value)
	}
	*dst = d
	return nil
}
