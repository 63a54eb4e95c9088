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

package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

const (
	alertsPath           = "/api/v2/alerts"
	defaultAlertTimeout  = 10 * time.Second
	defaultDedupTTL      = 30 * time.Minute
	defaultResolveIn     = time.Hour
	alertmanagerRespSize = 4096
)

// postableAlert is the Alertmanager v2 alert payload
type postableAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
}

// AlertmanagerSink posts alerts to Alertmanager. Alerts sharing a device and
// match key are sent once per dedup window, so a fault seen by both the poll
// and a trap reaches Alertmanager once.
type AlertmanagerSink struct {
	url       string
	client    *http.Client
	resolveIn time.Duration
	sent      *cache.Cache
	logger    logger.Logger
}

func NewAlertmanagerSink(cfg cfgtypes.AlertmanagerExporterConfig, log logger.Logger) (*AlertmanagerSink, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("alertmanager exporter needs an url")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAlertTimeout
	}
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	resolveIn := cfg.ResolveIn
	if resolveIn <= 0 {
		resolveIn = defaultResolveIn
	}

	return &AlertmanagerSink{
		url:       base + alertsPath,
		client:    &http.Client{Timeout: timeout},
		resolveIn: resolveIn,
		sent:      cache.New(ttl, ttl*2),
		logger:    log.WithValues("sink", "alertmanager"),
	}, nil
}

func (s *AlertmanagerSink) Name() string { return "alertmanager" }

func (s *AlertmanagerSink) ExportAlerts(ctx context.Context, records []storage.AlertRecord) error {
	var (
		payload []postableAlert
		keys    []string
	)
	batch := make(map[string]struct{})

	for _, r := range records {
		key := dedupKey(r)
		if _, found := s.sent.Get(key); found {
			continue
		}
		if _, dup := batch[key]; dup {
			continue
		}
		batch[key] = struct{}{}
		keys = append(keys, key)
		payload = append(payload, s.toPostable(r))
	}

	if len(payload) == 0 {
		return nil
	}
	if err := s.post(ctx, payload); err != nil {
		return err
	}

	for _, key := range keys {
		s.sent.SetDefault(key, struct{}{})
	}
	s.logger.V(1).Info("alerts posted", "count", len(payload), "skipped", len(records)-len(payload))
	return nil
}

func (s *AlertmanagerSink) toPostable(r storage.AlertRecord) postableAlert {
	startsAt := time.UnixMilli(r.OccurTime).UTC()
	return postableAlert{
		Labels: map[string]string{
			"alertname":     r.AlertName,
			"severity":      strings.ToLower(string(r.Severity)),
			"device_id":     r.DeviceID,
			"alert_id":      r.AlertID,
			"match_key":     r.MatchKey,
			"resource_type": r.ResourceType,
		},
		Annotations: map[string]string{
			"description": r.Description,
			"location":    r.Location,
			"sequence":    r.SequenceNumber,
			"category":    r.Category,
		},
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(s.resolveIn),
	}
}

func (s *AlertmanagerSink) post(ctx context.Context, payload []postableAlert) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alerts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, alertmanagerRespSize))
		return fmt.Errorf("%w: status %d: %s", errtypes.ExportRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func dedupKey(r storage.AlertRecord) string {
	return r.DeviceID + "/" + r.MatchKey
}
