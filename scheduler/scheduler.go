// scheduler/scheduler.go
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/wfunc/turnserver/logger"
)

// Job 一次性或周期性的延时任务
type Job struct {
	Id       int64
	Name     string
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type jobQueue []*Job

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x interface{}) {
	n := len(*q)
	job := x.(*Job)
	job.index = n
	*q = append(*q, job)
}

func (q *jobQueue) Pop() interface{} {
	old := *q
	n := len(old)
	job := old[n-1]
	job.index = -1
	*q = old[0 : n-1]
	return job
}

// Scheduler 进程内延时任务调度器。任务只在本进程有效，不落库；
// 丢失的推进任务可以通过管理接口手动补跑。
type Scheduler struct {
	queue   jobQueue
	mutex   sync.Mutex
	nextId  int64
	trigger chan *Job
	done    chan struct{}
	stopped bool
}

func New() *Scheduler {
	s := &Scheduler{
		queue:   make(jobQueue, 0),
		trigger: make(chan *Job, 1000),
		nextId:  1,
		done:    make(chan struct{}),
	}
	heap.Init(&s.queue)
	go s.process()
	return s
}

// ScheduleAt 在给定时刻执行一次任务，返回任务 ID。
func (s *Scheduler) ScheduleAt(name string, eta time.Time, callback func()) int64 {
	return s.add(name, time.Until(eta), 0, callback)
}

// ScheduleEvery 周期执行任务，首次执行在一个周期之后。
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, callback func()) int64 {
	return s.add(name, interval, interval, callback)
}

func (s *Scheduler) add(name string, delay, interval time.Duration, callback func()) int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job := &Job{
		Id:       s.nextId,
		Name:     name,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	s.nextId++

	heap.Push(&s.queue, job)
	return job.Id
}

// Cancel 取消尚未触发的任务。
func (s *Scheduler) Cancel(jobId int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, job := range s.queue {
		if job.Id == jobId {
			heap.Remove(&s.queue, i)
			break
		}
	}
}

// Stop 停止调度循环。已触发的任务仍会跑完。
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

// Pending 返回队列中等待触发的任务数（含周期任务）。
func (s *Scheduler) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) process() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-ticker.C:
			s.mutex.Lock()
			now := time.Now()

			for s.queue.Len() > 0 {
				job := s.queue[0]
				if job.Execute.After(now) {
					break
				}

				heap.Pop(&s.queue)
				s.trigger <- job

				if job.Interval > 0 {
					job.Execute = now.Add(job.Interval)
					heap.Push(&s.queue, job)
				}
			}
			s.mutex.Unlock()

		case job := <-s.trigger:
			go s.run(job)
		}
	}
}

func (s *Scheduler) run(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorw("scheduled job panicked", "job", job.Name, "panic", r)
		}
	}()
	job.Callback()
}
