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
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/job"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// mockTask implements TimerTask interface for testing
type mockTask struct {
	executed  atomic.Int32
	execution chan struct{}
	release   chan struct{}
	fail      bool
	panics    bool
}

func newMockTask() *mockTask {
	return &mockTask{
		execution: make(chan struct{}, 4),
	}
}

func (mt *mockTask) Run(_ *job.Timeout) error {
	mt.executed.Add(1)
	select {
	case mt.execution <- struct{}{}:
	default:
	}
	if mt.release != nil {
		<-mt.release
	}
	if mt.panics {
		panic("boom")
	}
	if mt.fail {
		return errors.New("task failed")
	}
	return nil
}

func (mt *mockTask) waitForExecution(timeout time.Duration) bool {
	select {
	case <-mt.execution:
		return true
	case <-time.After(timeout):
		return false
	}
}

func testWheel(t *testing.T, tick time.Duration, size, maxConcurrent int) *TimerWheel {
	t.Helper()
	tw := NewTimerWheelWithConfig(tick, size, maxConcurrent, logger.DefaultLogger(os.Stdout, "debug"))
	require.NoError(t, tw.Start())
	t.Cleanup(func() {
		_ = tw.Stop()
		tw.Wait()
	})
	return tw
}

func TestTimerWheel_Basic(t *testing.T) {
	tw := testWheel(t, 20*time.Millisecond, 8, 4)

	task := newMockTask()
	timeout := tw.NewTimeout(task, 60*time.Millisecond)
	require.NotNil(t, timeout)

	assert.True(t, task.waitForExecution(time.Second), "task was not executed")
	assert.Equal(t, int32(1), task.executed.Load())
}

func TestTimerWheel_NotBeforeDeadline(t *testing.T) {
	tw := testWheel(t, 10*time.Millisecond, 8, 4)

	task := newMockTask()
	start := time.Now()
	tw.NewTimeout(task, 150*time.Millisecond)

	require.True(t, task.waitForExecution(2*time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestTimerWheel_DelayLongerThanRotation(t *testing.T) {
	// 4 slots of 10ms rotate every 40ms, the task needs several rounds
	tw := testWheel(t, 10*time.Millisecond, 4, 4)

	task := newMockTask()
	start := time.Now()
	tw.NewTimeout(task, 130*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), task.executed.Load(), "task fired on an earlier rotation")

	require.True(t, task.waitForExecution(2*time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 130*time.Millisecond)
}

func TestTimerWheel_MultipleTasksOrdering(t *testing.T) {
	tw := testWheel(t, 20*time.Millisecond, 16, 4)

	task1 := newMockTask()
	task2 := newMockTask()
	task3 := newMockTask()

	tw.NewTimeout(task3, 300*time.Millisecond)
	tw.NewTimeout(task1, 100*time.Millisecond)
	tw.NewTimeout(task2, 200*time.Millisecond)

	assert.True(t, task1.waitForExecution(time.Second))
	assert.Equal(t, int32(0), task3.executed.Load())
	assert.True(t, task2.waitForExecution(time.Second))
	assert.True(t, task3.waitForExecution(time.Second))
}

func TestTimerWheel_Cancellation(t *testing.T) {
	tw := testWheel(t, 20*time.Millisecond, 8, 4)

	task := newMockTask()
	timeout := tw.NewTimeout(task, 100*time.Millisecond)

	assert.True(t, timeout.Cancel())
	assert.False(t, timeout.Cancel(), "second cancel should report already cancelled")

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(0), task.executed.Load())
	assert.Equal(t, 0, tw.Stats().TotalTimeouts)
}

func TestTimerWheel_StartStop(t *testing.T) {
	tw := NewTimerWheelWithConfig(20*time.Millisecond, 8, 4, logger.DefaultLogger(os.Stdout, "debug"))

	require.NoError(t, tw.Start())
	assert.True(t, tw.IsStarted())
	require.NoError(t, tw.Start())

	require.NoError(t, tw.Stop())
	assert.True(t, tw.IsStopped())
	require.NoError(t, tw.Stop())

	assert.Nil(t, tw.NewTimeout(newMockTask(), 10*time.Millisecond))
}

func TestTimerWheel_SaturatedPoolDefersInsteadOfDropping(t *testing.T) {
	tw := testWheel(t, 10*time.Millisecond, 8, 1)

	blocking := newMockTask()
	blocking.release = make(chan struct{})
	waiting := newMockTask()

	tw.NewTimeout(blocking, 20*time.Millisecond)
	require.True(t, blocking.waitForExecution(time.Second))

	tw.NewTimeout(waiting, 10*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), waiting.executed.Load(), "second task ran while the only worker was busy")
	assert.Greater(t, tw.Stats().Deferred, int64(0))

	close(blocking.release)
	assert.True(t, waiting.waitForExecution(time.Second), "deferred task was dropped")
}

func TestTimerWheel_FailingAndPanickingTasks(t *testing.T) {
	tw := testWheel(t, 10*time.Millisecond, 8, 2)

	failing := newMockTask()
	failing.fail = true
	panicking := newMockTask()
	panicking.panics = true
	healthy := newMockTask()

	tw.NewTimeout(failing, 20*time.Millisecond)
	tw.NewTimeout(panicking, 20*time.Millisecond)
	tw.NewTimeout(healthy, 60*time.Millisecond)

	assert.True(t, failing.waitForExecution(time.Second))
	assert.True(t, panicking.waitForExecution(time.Second))
	assert.True(t, healthy.waitForExecution(time.Second), "wheel stopped after a panicking task")
}

func TestTimerWheel_Stats(t *testing.T) {
	tw := testWheel(t, 100*time.Millisecond, 8, 3)

	tw.NewTimeout(newMockTask(), 500*time.Millisecond)
	tw.NewTimeout(newMockTask(), time.Second)

	stats := tw.Stats()
	assert.Equal(t, 8, stats.WheelSize)
	assert.Equal(t, 100*time.Millisecond, stats.TickDuration)
	assert.Equal(t, 3, stats.MaxConcurrent)
	assert.Equal(t, 2, stats.TotalTimeouts)
}
