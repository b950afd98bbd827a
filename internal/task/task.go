package task

import (
	"sync"
	"sync/atomic"
	"time"
)

const pollInterval = 250 * time.Millisecond

type TaskFunc = func(cancelTask *atomic.Bool)

// TaskHandle controls a background goroutine that polls its cancel flag.
type TaskHandle struct {
	cancel       atomic.Bool
	taskCanceled sync.WaitGroup
}

func Start(taskFunc TaskFunc) *TaskHandle {
	taskHandle := &TaskHandle{}
	taskHandle.taskCanceled.Add(1)
	go func() {
		defer taskHandle.taskCanceled.Done()
		taskFunc(&taskHandle.cancel)
	}()
	return taskHandle
}

// Every runs fn immediately and then once per interval until the task is cancelled.
func Every(interval time.Duration, fn func()) *TaskHandle {
	return Start(func(cancelTask *atomic.Bool) {
		for !cancelTask.Load() {
			fn()
			if !SleepUnlessCancelled(cancelTask, interval) {
				return
			}
		}
	})
}

// SleepUnlessCancelled sleeps for d in short steps and reports false as soon as cancel is set.
func SleepUnlessCancelled(cancel *atomic.Bool, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if cancel.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		time.Sleep(min(remaining, pollInterval))
	}
}

func (th *TaskHandle) IsCancelled() bool {
	return th.cancel.Load()
}

func (th *TaskHandle) Cancel() {
	th.cancel.Store(true)
}

func (th *TaskHandle) Join() {
	th.taskCanceled.Wait()
}

// JoinWithTimeout reports true when the task did not finish within timeout.
func (th *TaskHandle) JoinWithTimeout(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		th.taskCanceled.Wait()
	}()
	select {
	case <-c:
		return false
	case <-time.After(timeout):
		return true
	}
}
