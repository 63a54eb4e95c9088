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

// Package scheduler drives one recurring timer per registered job on top of
// the hashed wheel timer.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/job/timer"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/metrics"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	jobtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/job"
	loggertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// TickFunc is invoked on every tick of a job. The context is cancelled when
// the job is removed or the scheduler shuts down, implementations check it
// before each network call.
type TickFunc func(ctx context.Context, job jobtypes.Job) error

// Config of the underlying timer wheel
type Config struct {
	TickDuration  time.Duration
	WheelSize     int
	MaxConcurrent int
}

type Scheduler struct {
	wheel  *timer.TimerWheel
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	jobs sync.Map // job id -> *jobTask

	// shutdownMu orders registration against shutdown
	shutdownMu sync.RWMutex
	shutdown   bool
	inflight   sync.WaitGroup
}

// Stats of the scheduler
type Stats struct {
	Jobs  int                   `json:"jobs"`
	Wheel timer.TimerWheelStats `json:"wheel"`
}

func New(cfg Config, log logger.Logger) *Scheduler {
	log = log.WithName(string(loggertypes.LogComponentScheduler))
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		wheel:  timer.NewTimerWheelWithConfig(cfg.TickDuration, cfg.WheelSize, cfg.MaxConcurrent, log),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts ticking
func (s *Scheduler) Start() error {
	return s.wheel.Start()
}

// AddJob registers a periodic job firing first after the job's initial delay,
// then every interval after the previous tick completed. Registering an id
// twice fails with JobExists. After Shutdown the call is a silent no-op.
func (s *Scheduler) AddJob(job *jobtypes.Job, fn TickFunc) error {
	if job == nil || fn == nil {
		return fmt.Errorf("%w: job and tick function are required", errtypes.JobInvalid)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errtypes.JobInvalid, err)
	}

	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	if s.shutdown {
		s.logger.V(1).Info("scheduler is shut down, ignoring job", "jobId", job.ID)
		return nil
	}

	task := newJobTask(s, *job, fn)
	if _, loaded := s.jobs.LoadOrStore(job.ID, task); loaded {
		task.cancel()
		return fmt.Errorf("%w: %s", errtypes.JobExists, job.ID)
	}

	task.arm(job.InitialDelay)
	metrics.ScheduledJobs.Inc()

	s.logger.Info("job added", "jobId", job.ID, "interval", job.Interval, "initialDelay", job.InitialDelay)
	return nil
}

// RemoveJob cancels and deregisters a job, unknown ids are ignored.
// A tick already running observes the cancellation through its context.
func (s *Scheduler) RemoveJob(id string) {
	value, ok := s.jobs.LoadAndDelete(id)
	if !ok {
		return
	}

	value.(*jobTask).stop()
	metrics.ScheduledJobs.Dec()

	s.logger.Info("job removed", "jobId", id)
}

// GetJob returns a snapshot of a registered job
func (s *Scheduler) GetJob(id string) (jobtypes.Job, bool) {
	value, ok := s.jobs.Load(id)
	if !ok {
		return jobtypes.Job{}, false
	}
	return value.(*jobTask).snapshot(), true
}

// Jobs returns snapshots of all registered jobs ordered by id
func (s *Scheduler) Jobs() []jobtypes.Job {
	var jobs []jobtypes.Job
	s.jobs.Range(func(_, value any) bool {
		jobs = append(jobs, value.(*jobTask).snapshot())
		return true
	})
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

func (s *Scheduler) Stats() Stats {
	count := 0
	s.jobs.Range(func(_, _ any) bool {
		count++
		return true
	})
	return Stats{Jobs: count, Wheel: s.wheel.Stats()}
}

// Shutdown cancels every job, waits for running ticks to return and clears
// the registry. It is safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.shutdownMu.Lock()
	if s.shutdown {
		s.shutdownMu.Unlock()
		return
	}
	s.shutdown = true
	s.shutdownMu.Unlock()

	s.logger.Info("shutting down scheduler")

	s.cancel()
	s.jobs.Range(func(key, _ any) bool {
		if value, ok := s.jobs.LoadAndDelete(key); ok {
			value.(*jobTask).stop()
			metrics.ScheduledJobs.Dec()
		}
		return true
	})

	s.inflight.Wait()
	_ = s.wheel.Stop()
	s.wheel.Wait()

	s.logger.Info("scheduler stopped")
}
