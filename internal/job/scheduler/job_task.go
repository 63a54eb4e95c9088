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

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	jobtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/job"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// jobTask is the timer task of one registered job. It runs the tick and
// re-arms itself once the tick returned, so ticks of a job never overlap.
type jobTask struct {
	scheduler *Scheduler
	fn        TickFunc
	ctx       context.Context
	cancel    context.CancelFunc
	logger    logger.Logger

	mu      sync.Mutex
	job     jobtypes.Job
	timeout *jobtypes.Timeout
}

func newJobTask(s *Scheduler, job jobtypes.Job, fn TickFunc) *jobTask {
	ctx, cancel := context.WithCancel(s.ctx)
	job.State = jobtypes.StateScheduled

	return &jobTask{
		scheduler: s,
		fn:        fn,
		ctx:       ctx,
		cancel:    cancel,
		logger:    s.logger.WithValues("jobId", job.ID),
		job:       job,
	}
}

// Run executes the timer task
func (t *jobTask) Run(_ *jobtypes.Timeout) error {
	if t.ctx.Err() != nil {
		return nil
	}

	s := t.scheduler
	s.shutdownMu.RLock()
	if s.shutdown {
		s.shutdownMu.RUnlock()
		return nil
	}
	s.inflight.Add(1)
	s.shutdownMu.RUnlock()
	defer s.inflight.Done()

	snapshot := t.begin()

	t.logger.V(1).Info("running job tick", "runs", snapshot.Runs)
	start := time.Now()
	err := t.invoke(snapshot)
	t.finish(start, err)

	if t.ctx.Err() != nil {
		return nil
	}
	t.arm(snapshot.Interval)

	return nil
}

// invoke calls the tick function, turning a panic into an error
func (t *jobTask) invoke(snapshot jobtypes.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job tick: %v", r)
		}
	}()

	return t.fn(t.ctx, snapshot)
}

func (t *jobTask) begin() jobtypes.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.job.State = jobtypes.StateRunning
	t.job.Runs++
	t.job.LastRun = time.Now()
	return t.job
}

func (t *jobTask) finish(start time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.job.Failures++
		t.job.LastError = err.Error()
		t.logger.Error(err, "job tick failed", "duration", time.Since(start))
	} else {
		t.job.LastError = ""
		t.logger.V(1).Info("job tick completed", "duration", time.Since(start))
	}

	if t.ctx.Err() != nil {
		t.job.State = jobtypes.StateCancelled
		return
	}
	t.job.State = jobtypes.StateScheduled
}

// arm schedules the next tick of the job
func (t *jobTask) arm(delay time.Duration) {
	timeout := t.scheduler.wheel.NewTimeout(t, delay)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.timeout = timeout
	// the job may have been cancelled while the wheel was arming it
	if t.ctx.Err() != nil && timeout != nil {
		timeout.Cancel()
	}
}

// stop cancels the job context and the pending timeout
func (t *jobTask) stop() {
	t.cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timeout != nil {
		t.timeout.Cancel()
	}
	if t.job.State != jobtypes.StateRunning {
		t.job.State = jobtypes.StateCancelled
	}
}

func (t *jobTask) snapshot() jobtypes.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.job
}
