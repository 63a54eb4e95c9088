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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/arrow"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// Kafka payload encodings
const (
	EncodingJSON  = "json"
	EncodingArrow = "arrow"

	HeaderContentType = "content-type"
	contentTypeJSON   = "application/json"
	contentTypeArrow  = "application/vnd.apache.arrow.stream"
)

// messageWriter is the part of kafka.Writer the sink uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes metric records to one topic and alert records to another.
// Metric records are sent as one JSON message per record, or as one Arrow IPC
// stream per device.
type KafkaSink struct {
	writer       messageWriter
	metricsTopic string
	alertsTopic  string
	encoding     string
	serializer   *arrow.ArrowSerializer
	logger       logger.Logger
}

func NewKafkaSink(cfg cfgtypes.KafkaExporterConfig, log logger.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka exporter needs at least one broker")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return newKafkaSink(cfg, writer, log)
}

func newKafkaSink(cfg cfgtypes.KafkaExporterConfig, writer messageWriter, log logger.Logger) (*KafkaSink, error) {
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = EncodingJSON
	}
	if encoding != EncodingJSON && encoding != EncodingArrow {
		return nil, fmt.Errorf("%w: %q", errtypes.UnknownEncoding, cfg.Encoding)
	}
	if cfg.MetricsTopic == "" || cfg.AlertsTopic == "" {
		return nil, fmt.Errorf("kafka exporter needs metrics and alerts topics")
	}

	log = log.WithValues("sink", "kafka")
	return &KafkaSink{
		writer:       writer,
		metricsTopic: cfg.MetricsTopic,
		alertsTopic:  cfg.AlertsTopic,
		encoding:     encoding,
		serializer:   arrow.NewArrowSerializer(log),
		logger:       log,
	}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) ExportMetrics(ctx context.Context, records []storage.MetricRecord) error {
	var (
		messages []kafka.Message
		err      error
	)
	if s.encoding == EncodingArrow {
		messages, err = s.arrowMessages(records)
	} else {
		messages, err = s.jsonMetricMessages(records)
	}
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	return s.writer.WriteMessages(ctx, messages...)
}

func (s *KafkaSink) ExportAlerts(ctx context.Context, records []storage.AlertRecord) error {
	now := time.Now()
	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", r.AlertID, err)
		}
		messages = append(messages, kafka.Message{
			Topic:   s.alertsTopic,
			Key:     []byte(r.DeviceID + "/" + r.MatchKey),
			Value:   value,
			Time:    now,
			Headers: []kafka.Header{{Key: HeaderContentType, Value: []byte(contentTypeJSON)}},
		})
	}
	if len(messages) == 0 {
		return nil
	}
	return s.writer.WriteMessages(ctx, messages...)
}

func (s *KafkaSink) jsonMetricMessages(records []storage.MetricRecord) ([]kafka.Message, error) {
	now := time.Now()
	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal metric %s/%s: %w", r.ResourceID, r.Name, err)
		}
		messages = append(messages, kafka.Message{
			Topic:   s.metricsTopic,
			Key:     []byte(r.DeviceID),
			Value:   value,
			Time:    now,
			Headers: []kafka.Header{{Key: HeaderContentType, Value: []byte(contentTypeJSON)}},
		})
	}
	return messages, nil
}

// arrowMessages groups the records by device so a device's points stay on one partition
func (s *KafkaSink) arrowMessages(records []storage.MetricRecord) ([]kafka.Message, error) {
	byDevice := make(map[string][]storage.MetricRecord)
	for _, r := range records {
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], r)
	}
	devices := make([]string, 0, len(byDevice))
	for id := range byDevice {
		devices = append(devices, id)
	}
	sort.Strings(devices)

	now := time.Now()
	messages := make([]kafka.Message, 0, len(devices))
	for _, id := range devices {
		value, err := s.serializer.SerializeMetrics(byDevice[id])
		if err != nil {
			return nil, fmt.Errorf("encode metrics of %s: %w", id, err)
		}
		messages = append(messages, kafka.Message{
			Topic:   s.metricsTopic,
			Key:     []byte(id),
			Value:   value,
			Time:    now,
			Headers: []kafka.Header{{Key: HeaderContentType, Value: []byte(contentTypeArrow)}},
		})
	}
	return messages, nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
