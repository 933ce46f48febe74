package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// task is a scheduled job. Interval is zero for one-shot tasks.
type task struct {
	id       string
	expiryAt time.Time
	interval time.Duration
	run      func(ctx context.Context)
	index    int // index in the heap (for heap.Interface)
}

// taskHeap is a min-heap of tasks ordered by expiryAt
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].expiryAt.Before(h[j].expiryAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	n := len(*h)
	t := x.(*task)
	t.index = n
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil // avoid memory leak
	t.index = -1
	*h = old[0 : n-1]
	return t
}

// Scheduler runs keyed jobs on a min-heap of expiry times. At most one run per
// key is in flight; a tick that finds its key still running is skipped.
type Scheduler struct {
	heap    taskHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	tasks   map[string]*task
	running map[string]bool
	skipped int
	runs    int
	stopped bool
	started bool
	stopCh  chan struct{}
	loopWg  sync.WaitGroup
	jobWg   sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// New creates a new scheduler
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		heap:    make(taskHeap, 0),
		wakeup:  make(chan struct{}, 1),
		tasks:   make(map[string]*task),
		running: make(map[string]bool),
		stopCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
	heap.Init(&s.heap)
	return s
}

// Start starts the scheduling loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.loopWg.Add(1)
	go s.run()
}

// Stop cancels in-flight jobs and waits for them to return. Pending runs are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.cancel()
	s.loopWg.Wait()
	s.jobWg.Wait()
}

// Every runs fn every interval, first after one interval has elapsed.
// Replaces any task with the same id.
func (s *Scheduler) Every(id string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	return s.schedule(id, time.Now().Add(interval), interval, fn)
}

// At runs fn once at the given time. Replaces any task with the same id.
func (s *Scheduler) At(id string, at time.Time, fn func(ctx context.Context)) error {
	return s.schedule(id, at, 0, fn)
}

func (s *Scheduler) schedule(id string, at time.Time, interval time.Duration, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	if existing, ok := s.tasks[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.tasks, id)
	}

	t := &task{id: id, expiryAt: at, interval: interval, run: fn}
	heap.Push(&s.heap, t)
	s.tasks[id] = t

	// Wake up the loop if this is the earliest task
	if s.heap[0] == t {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel removes a scheduled task. A run already in flight is not interrupted.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	heap.Remove(&s.heap, t.index)
	delete(s.tasks, id)
	return true
}

func (s *Scheduler) run() {
	defer s.loopWg.Done()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if s.heap.Len() == 0 {
			waitDuration = 24 * time.Hour
		} else {
			next := s.heap[0]
			waitDuration = time.Until(next.expiryAt)
			if waitDuration <= 0 {
				t := heap.Pop(&s.heap).(*task)
				delete(s.tasks, t.id)
				s.fire(t)
				if t.interval > 0 {
					s.reschedule(t)
				}
				s.mu.Unlock()
				continue
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// fire starts t unless a run for the same id is still in flight. Caller holds mu.
func (s *Scheduler) fire(t *task) {
	if s.running[t.id] {
		s.skipped++
		s.logger.Debug("Skipping run, previous still in flight", zap.String("task", t.id))
		return
	}
	s.running[t.id] = true
	s.runs++
	s.jobWg.Add(1)

	go func() {
		defer s.jobWg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Scheduled task panicked", zap.String("task", t.id), zap.Any("panic", r))
			}
			s.mu.Lock()
			delete(s.running, t.id)
			s.mu.Unlock()
		}()
		t.run(s.ctx)
	}()
}

// reschedule queues the next run of a periodic task. Caller holds mu.
func (s *Scheduler) reschedule(t *task) {
	if _, replaced := s.tasks[t.id]; replaced {
		return
	}
	next := t.expiryAt.Add(t.interval)
	if now := time.Now(); next.Before(now) {
		next = now.Add(t.interval)
	}
	t.expiryAt = next
	heap.Push(&s.heap, t)
	s.tasks[t.id] = t
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ScheduledTasks: len(s.tasks),
		RunningTasks:   len(s.running),
		Runs:           s.runs,
		Skipped:        s.skipped,
	}
}

// Stats contains statistics about the scheduler
type Stats struct {
	ScheduledTasks int
	RunningTasks   int
	Runs           int
	Skipped        int
}

var (
	ErrSchedulerStopped = &SchedulerError{"scheduler is stopped"}
	ErrInvalidInterval  = &SchedulerError{"interval must be positive"}
)

// SchedulerError represents a scheduler error
type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string {
	return e.msg
}
