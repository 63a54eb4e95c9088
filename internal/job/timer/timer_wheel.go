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

package timer

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/job"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

const (
	// DefaultWheelSize default wheel size (512 slots)
	DefaultWheelSize = 512
	// DefaultTickDuration default tick duration (1 second)
	DefaultTickDuration = 1 * time.Second
	// DefaultMaxConcurrent default limit of concurrently running tasks
	DefaultMaxConcurrent = 64
)

// TimerWheel represents a hashed wheel timer implementation
type TimerWheel struct {
	tickDuration time.Duration
	wheelSize    int
	wheel        []*bucket
	currentTick  int64
	startTime    time.Time
	ticker       *time.Ticker
	workerPool   chan struct{}

	mutex   sync.Mutex
	started atomic.Bool
	stopped atomic.Bool
	running sync.WaitGroup

	deferred atomic.Int64

	logger logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// bucket represents a slot in the timer wheel
type bucket struct {
	timeouts *list.List
	mutex    sync.Mutex
}

// newBucket creates a new bucket
func newBucket() *bucket {
	return &bucket{
		timeouts: list.New(),
	}
}

// addTimeout adds a timeout to the bucket
func (b *bucket) addTimeout(timeout *job.Timeout) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if timeout.IsCancelled() {
		return
	}

	b.timeouts.PushBack(timeout)
}

// expireTimeouts removes cancelled timeouts, counts down the rounds of the
// others and returns those whose rounds reached zero
func (b *bucket) expireTimeouts() []*job.Timeout {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var expired []*job.Timeout
	for e := b.timeouts.Front(); e != nil; {
		timeout := e.Value.(*job.Timeout)
		next := e.Next()

		if timeout.IsCancelled() {
			b.timeouts.Remove(e)
		} else if timeout.DecrementRounds() {
			expired = append(expired, timeout)
			b.timeouts.Remove(e)
		}

		e = next
	}

	return expired
}

func (b *bucket) len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.timeouts.Len()
}

// NewTimerWheel creates a new timer wheel with default settings
func NewTimerWheel(logger logger.Logger) *TimerWheel {
	return NewTimerWheelWithConfig(DefaultTickDuration, DefaultWheelSize, DefaultMaxConcurrent, logger)
}

// NewTimerWheelWithConfig creates a new timer wheel with custom configuration
func NewTimerWheelWithConfig(tickDuration time.Duration, wheelSize, maxConcurrent int, logger logger.Logger) *TimerWheel {
	if tickDuration <= 0 {
		tickDuration = DefaultTickDuration
	}
	if wheelSize <= 0 {
		wheelSize = DefaultWheelSize
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())

	tw := &TimerWheel{
		tickDuration: tickDuration,
		wheelSize:    wheelSize,
		wheel:        make([]*bucket, wheelSize),
		startTime:    time.Now(),
		workerPool:   make(chan struct{}, maxConcurrent),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 0; i < wheelSize; i++ {
		tw.wheel[i] = newBucket()
	}

	return tw
}

// Start starts the timer wheel
func (tw *TimerWheel) Start() error {
	if !tw.started.CompareAndSwap(false, true) {
		return nil // already started
	}

	tw.logger.Info("starting timer wheel", "tickDuration", tw.tickDuration, "wheelSize", tw.wheelSize)

	tw.ticker = time.NewTicker(tw.tickDuration)

	go tw.run()

	return nil
}

// Stop stops the timer wheel. Tasks already running are not interrupted,
// use Wait to block until they return.
func (tw *TimerWheel) Stop() error {
	if !tw.stopped.CompareAndSwap(false, true) {
		return nil // already stopped
	}

	tw.logger.Info("stopping timer wheel")

	tw.cancel()

	if tw.ticker != nil {
		tw.ticker.Stop()
	}

	return nil
}

// Wait blocks until every task started by the wheel has returned
func (tw *TimerWheel) Wait() {
	tw.running.Wait()
}

// NewTimeout schedules a new timeout task
func (tw *TimerWheel) NewTimeout(task job.TimerTask, delay time.Duration) *job.Timeout {
	if tw.stopped.Load() {
		tw.logger.V(1).Info("timer wheel is stopped, cannot schedule new timeout")
		return nil
	}
	if delay < 0 {
		delay = 0
	}

	timeout := job.NewTimeout(task, delay)

	tw.mutex.Lock()
	defer tw.mutex.Unlock()

	tw.place(timeout, tw.deadlineTick(timeout.Deadline()))

	tw.logger.V(1).Info("scheduled new timeout",
		"delay", delay,
		"deadline", timeout.Deadline(),
		"bucketIndex", timeout.GetBucketIndex())

	return timeout
}

// deadlineTick is the first tick at or after the deadline
func (tw *TimerWheel) deadlineTick(deadline time.Time) int64 {
	elapsed := deadline.Sub(tw.startTime)
	ticks := int64(elapsed / tw.tickDuration)
	if elapsed%tw.tickDuration != 0 {
		ticks++
	}
	return ticks
}

// place puts a timeout into the bucket of the target tick, never earlier than
// the next tick. Caller holds tw.mutex.
func (tw *TimerWheel) place(timeout *job.Timeout, targetTick int64) {
	next := tw.currentTick + 1
	if targetTick < next {
		targetTick = next
	}

	size := int64(tw.wheelSize)
	timeout.SetRounds((targetTick - next) / size)
	index := int(targetTick % size)
	timeout.SetBucketIndex(index)

	tw.wheel[index].addTimeout(timeout)
}

// run is the main timer wheel loop
func (tw *TimerWheel) run() {
	defer tw.logger.Info("timer wheel stopped")

	for {
		select {
		case <-tw.ctx.Done():
			return
		case now := <-tw.ticker.C:
			tw.tick(now)
		}
	}
}

// tick advances the wheel by one slot and runs the timeouts that expired in it
func (tw *TimerWheel) tick(now time.Time) {
	tw.mutex.Lock()
	tw.currentTick++
	currentTick := tw.currentTick
	expired := tw.wheel[int(currentTick%int64(tw.wheelSize))].expireTimeouts()
	tw.mutex.Unlock()

	if len(expired) == 0 {
		return
	}

	tw.logger.V(1).Info("processing expired timeouts",
		"count", len(expired),
		"currentTick", currentTick,
		"now", now)

	for _, timeout := range expired {
		tw.executeTimeout(timeout)
	}
}

// executeTimeout runs a timeout task on its own goroutine. When every worker
// slot is busy the timeout moves to the next tick instead of being dropped.
func (tw *TimerWheel) executeTimeout(timeout *job.Timeout) {
	if timeout.IsCancelled() {
		return
	}

	select {
	case tw.workerPool <- struct{}{}:
		tw.running.Add(1)
		go func() {
			defer func() {
				<-tw.workerPool
				tw.running.Done()
				if r := recover(); r != nil {
					tw.logger.Info("panic in timeout execution", "panic", r)
				}
			}()

			if err := timeout.Task().Run(timeout); err != nil {
				tw.logger.Error(err, "error executing timeout task")
			}
		}()
	default:
		tw.deferred.Add(1)
		tw.logger.V(1).Info("worker pool is full, deferring timeout to next tick")

		tw.mutex.Lock()
		tw.place(timeout, tw.currentTick+1)
		tw.mutex.Unlock()
	}
}

// IsStarted returns true if the timer wheel is started
func (tw *TimerWheel) IsStarted() bool {
	return tw.started.Load()
}

// IsStopped returns true if the timer wheel is stopped
func (tw *TimerWheel) IsStopped() bool {
	return tw.stopped.Load()
}

// Stats returns statistics about the timer wheel
func (tw *TimerWheel) Stats() TimerWheelStats {
	tw.mutex.Lock()
	currentTick := tw.currentTick
	tw.mutex.Unlock()

	stats := TimerWheelStats{
		WheelSize:     tw.wheelSize,
		TickDuration:  tw.tickDuration,
		CurrentTick:   currentTick,
		StartTime:     tw.startTime,
		Running:       len(tw.workerPool),
		MaxConcurrent: cap(tw.workerPool),
		Deferred:      tw.deferred.Load(),
	}

	for _, b := range tw.wheel {
		stats.TotalTimeouts += b.len()
	}

	return stats
}

// TimerWheelStats contains statistics about the timer wheel
type TimerWheelStats struct {
	WheelSize     int           `json:"wheelSize"`
	TickDuration  time.Duration `json:"tickDuration"`
	CurrentTick   int64         `json:"currentTick"`
	StartTime     time.Time     `json:"startTime"`
	TotalTimeouts int           `json:"totalTimeouts"`
	Running       int           `json:"running"`
	MaxConcurrent int           `json:"maxConcurrent"`
	Deferred      int64         `json:"deferred"`
}
