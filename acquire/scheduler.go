// Package acquire owns the acquisition task queue and the single worker that
// drives the browser session through it. The operator stays in the loop: the
// session is visible, and pause/resume exist so cookie walls and CAPTCHAs
// can be resolved by hand before capture.
//
// Exactly one background worker runs the task lifecycle
// (Queued → Navigating → NavDone → Captured). Stop and pause are
// cooperative: they are honored at checkpoints between blocking session
// calls and during the stabilization wait, never mid-call.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// CaptureResult reports where a capture landed.
type CaptureResult struct {
	CurrentURL string
	HTMLPath   string
	URLPath    string
}

// CaptureSession is the browser boundary the scheduler drives. The worker is
// the only caller of Goto and CapturePage; Open may also run from Start.
// The session is opened lazily on first use and closed exactly once on
// shutdown.
type CaptureSession interface {
	Open(ctx context.Context) error
	IsOpen() bool
	Goto(ctx context.Context, url string) error
	CapturePage(ctx context.Context, outDir, baseName string) (CaptureResult, error)
	Close() error
}

// RunState is the worker control state.
type RunState int

const (
	// RunIdle: worker alive but waiting for a start command (or drained queue).
	RunIdle RunState = iota
	// RunRunning: worker actively consuming the queue.
	RunRunning
	// RunPaused: operator intervention in progress; browser stays open.
	RunPaused
)

func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunPaused:
		return "paused"
	default:
		return "idle"
	}
}

// Config configures the scheduler.
type Config struct {
	// OutputDir receives captured markup and URL files. Default: "captures".
	OutputDir string
	// StabilizeDelay is the wait between navigation and capture, letting the
	// DOM settle. Polled in Tick increments. Default: 1500ms.
	StabilizeDelay time.Duration
	// PreCaptureDelay is the extra settle wait immediately before capture.
	// Default: 1s.
	PreCaptureDelay time.Duration
	// Tick is the granularity at which waits and the idle loop sample the
	// stop and pause flags. Default: 50ms.
	Tick time.Duration
	// EventBuffer caps pending events; overflow drops with a warning rather
	// than blocking the worker. Default: 256.
	EventBuffer int
	// AfterCapture, when set, runs synchronously on the worker after each
	// successful capture (markdown companion, cataloguing). It must not
	// touch the session.
	AfterCapture func(task Task, res CaptureResult)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.OutputDir == "" {
		c.OutputDir = "captures"
	}
	if c.StabilizeDelay <= 0 {
		c.StabilizeDelay = 1500 * time.Millisecond
	}
	if c.PreCaptureDelay <= 0 {
		c.PreCaptureDelay = time.Second
	}
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler owns the task table, the queue and the worker. Command methods
// are safe to call from any goroutine; tasks themselves are mutated by the
// worker only (plus creation-time fields on the command side).
type Scheduler struct {
	cfg     Config
	session CaptureSession
	logger  *slog.Logger

	mu             sync.Mutex
	tasks          map[int]*Task
	queue          deque
	nextID         int
	currentID      int // 0 = no current task
	lastCapturedID int
	state          RunState
	restartWanted  bool // edge-triggered, consumed once per assertion
	workerUp       bool
	stopped        bool

	stopCh   chan struct{}
	stopOnce sync.Once
	workerWG sync.WaitGroup

	events chan Event

	now func() time.Time
}

// New creates a Scheduler around a capture session. The worker starts on the
// first Start call.
func New(session CaptureSession, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		cfg:     cfg,
		session: session,
		logger:  cfg.Logger,
		tasks:   make(map[int]*Task),
		nextID:  1,
		stopCh:  make(chan struct{}),
		events:  make(chan Event, cfg.EventBuffer),
		now:     time.Now,
	}
}

// Events returns the ordered notification stream. A single consumer must
// drain it on its own loop.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// AddURLs enqueues one task per non-blank URL and returns the assigned ids.
func (s *Scheduler) AddURLs(urls []string) []int {
	var ids []int
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		s.mu.Lock()
		id := s.nextID
		s.nextID++
		t := &Task{ID: id, URL: u, Site: SiteForURL(u), Status: StatusQueued}
		s.tasks[id] = t
		s.queue.PushBack(id)
		cp := *t
		s.mu.Unlock()

		s.emitTask(cp)
		ids = append(ids, id)
	}
	return ids
}

// Start opens the browser session if needed and puts the worker in the
// running state. Session-open failures (no compatible browser) propagate to
// the caller; everything later is absorbed per task.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("acquire: scheduler is stopped")
	}
	s.mu.Unlock()

	if !s.session.IsOpen() {
		if err := s.session.Open(ctx); err != nil {
			return fmt.Errorf("acquire: open session: %w", err)
		}
		s.emitState("browser session open (kept until shutdown)")
	}

	s.mu.Lock()
	if !s.workerUp {
		s.workerUp = true
		s.workerWG.Add(1)
		go s.worker(ctx)
	}
	s.state = RunRunning
	s.mu.Unlock()

	s.emitState("acquisition started")
	return nil
}

// Pause suspends consumption after the current checkpoint. The browser stays
// open so the operator can clear cookie banners or CAPTCHAs by hand. The
// current task, if any and not terminal, is marked paused and keeps its
// "current" ownership.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.state = RunPaused
	var cp *Task
	if id := s.currentID; id != 0 {
		if t := s.tasks[id]; t != nil && !t.Status.Terminal() {
			t.Status = StatusPaused
			c := *t
			cp = &c
		}
	}
	s.mu.Unlock()

	if cp != nil {
		s.emitTask(*cp)
	}
	s.emitState("paused: resolve captcha/cookies, then resume")
}

// ResumeRestart resumes consumption and restarts the in-flight acquisition:
// the current task is reset and re-acquired fresh by the worker. The restart
// flag is edge-triggered and consumed exactly once.
func (s *Scheduler) ResumeRestart() {
	s.mu.Lock()
	s.restartWanted = true
	s.state = RunRunning
	s.mu.Unlock()

	s.emitState("resuming: restarting the in-flight acquisition")
}

// RetryLast clones the most recently captured task's URL into a brand-new
// task inserted at the head of the queue; the original record is untouched.
// Returns 0 when nothing has been captured yet.
func (s *Scheduler) RetryLast() int {
	s.mu.Lock()
	last := s.tasks[s.lastCapturedID]
	if s.lastCapturedID == 0 || last == nil {
		s.mu.Unlock()
		return 0
	}
	id := s.nextID
	s.nextID++
	t := &Task{ID: id, URL: last.URL, Site: SiteForURL(last.URL), Status: StatusQueued}
	s.tasks[id] = t
	s.queue.PushFront(id)
	cp := *t
	s.mu.Unlock()

	s.emitTask(cp)
	s.emitLog("retry: requeued at head → " + cp.URL)
	return id
}

// Stop terminates the worker at its next checkpoint. In-flight task status
// is left as the current step set it. Stop is final: the scheduler cannot be
// restarted afterwards.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	s.state = RunIdle
	s.stopped = true
	s.mu.Unlock()
}

// Wait blocks until the worker goroutine has exited.
func (s *Scheduler) Wait() {
	s.workerWG.Wait()
}

// CloseSession releases the browser instance. Idempotent.
func (s *Scheduler) CloseSession() error {
	return s.session.Close()
}

// State returns the current worker control state.
func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tasks returns a snapshot of all tasks ordered by id.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// worker is the single consumer loop. It pops tasks while running, honors
// stop/pause at checkpoints, and never halts on a task failure.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.workerWG.Done()
	s.emitLog("acquisition worker started")

	for !s.done(ctx) {
		s.mu.Lock()
		if s.state != RunRunning {
			s.mu.Unlock()
			s.idle(ctx)
			continue
		}

		if reset, ok := s.consumeRestartLocked(); ok {
			s.mu.Unlock()
			s.emitTask(reset)
			s.emitLog("resume: current task requeued at head → " + reset.URL)
			continue
		}

		id, ok := s.queue.PopFront()
		if !ok {
			s.state = RunIdle
			s.mu.Unlock()
			s.emitState("queue empty (browser stays open)")
			continue
		}
		task, found := s.tasks[id]
		if !found {
			s.mu.Unlock()
			continue
		}
		s.currentID = id
		task.Status = StatusNavigating
		task.Error = ""
		cp := *task
		s.mu.Unlock()

		s.emitTask(cp)
		s.runTask(ctx, cp)
	}

	s.emitLog("acquisition worker stopped")
}

// runTask drives one task from navigation to capture. The task passed in is
// a snapshot taken when it became current; status writes go through the
// table under the lock.
func (s *Scheduler) runTask(ctx context.Context, task Task) {
	s.emitLog("navigate → " + task.URL)
	if err := s.session.Goto(ctx, task.URL); err != nil {
		s.failTask(task.ID, fmt.Sprintf("navigation: %v", err))
		return
	}

	// Pause clicked during the page load is seen here.
	if s.pauseRequested() {
		s.setStatus(task.ID, StatusPaused)
		return
	}
	s.setStatus(task.ID, StatusNavDone)
	s.emitState("navigation done: " + task.Site)

	// DOM stabilization, sampled so pause/stop land promptly.
	if !s.waitCheckpoint(ctx, s.cfg.StabilizeDelay) {
		return
	}
	if s.pauseRequested() {
		s.setStatus(task.ID, StatusPaused)
		return
	}
	if !s.waitCheckpoint(ctx, s.cfg.PreCaptureDelay) {
		return
	}
	if s.pauseRequested() {
		s.setStatus(task.ID, StatusPaused)
		return
	}

	base := s.baseName(task)
	res, err := s.session.CapturePage(ctx, s.cfg.OutputDir, base)
	if err != nil {
		s.failTask(task.ID, fmt.Sprintf("capture: %v", err))
		return
	}

	s.mu.Lock()
	t := s.tasks[task.ID]
	t.Status = StatusCaptured
	t.SavedPath = res.HTMLPath
	s.lastCapturedID = task.ID
	s.currentID = 0
	cp := *t
	s.mu.Unlock()

	s.emitTask(cp)
	s.emitState("page captured → " + res.HTMLPath)

	if s.cfg.AfterCapture != nil {
		s.cfg.AfterCapture(cp, res)
	}
}

// consumeRestartLocked applies a pending resume-restart: the current task,
// when not yet terminal, is reset to Queued (path and error cleared), moved
// to the head of the queue without duplication, and released so the worker
// re-acquires it fresh. Callers hold s.mu.
func (s *Scheduler) consumeRestartLocked() (Task, bool) {
	if !s.restartWanted {
		return Task{}, false
	}
	s.restartWanted = false

	id := s.currentID
	if id == 0 {
		return Task{}, false
	}
	t := s.tasks[id]
	if t == nil || t.Status.Terminal() {
		return Task{}, false
	}

	t.Status = StatusQueued
	t.SavedPath = ""
	t.Error = ""
	s.queue.Remove(id)
	s.queue.PushFront(id)
	s.currentID = 0
	return *t, true
}

func (s *Scheduler) failTask(id int, msg string) {
	s.mu.Lock()
	t := s.tasks[id]
	t.Status = StatusError
	t.Error = msg
	s.currentID = 0
	cp := *t
	s.mu.Unlock()

	s.emitTask(cp)
	s.emitState("task failed (see error column)")
	s.emitLog(msg)
}

func (s *Scheduler) setStatus(id int, st Status) {
	s.mu.Lock()
	t := s.tasks[id]
	t.Status = st
	cp := *t
	s.mu.Unlock()

	s.emitTask(cp)
}

func (s *Scheduler) pauseRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == RunPaused
}

// waitCheckpoint sleeps for d in Tick increments, returning early when stop
// or pause is requested. Returns false when the worker must terminate.
func (s *Scheduler) waitCheckpoint(ctx context.Context, d time.Duration) bool {
	deadline := s.now().Add(d)
	for s.now().Before(deadline) {
		select {
		case <-s.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.Tick):
		}
		if s.pauseRequested() {
			return true
		}
	}
	return true
}

// idle sleeps one tick while not running, stop-aware.
func (s *Scheduler) idle(ctx context.Context) {
	select {
	case <-s.stopCh:
	case <-ctx.Done():
	case <-time.After(s.cfg.Tick):
	}
}

func (s *Scheduler) done(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Scheduler) baseName(task Task) string {
	ts := s.now().Format("20060102_150405")
	return fmt.Sprintf("%04d_%s_%s_%s", task.ID, task.Site, ts, Slugify(task.URL, 60))
}

func (s *Scheduler) emitTask(t Task) {
	s.emit(Event{Kind: EventTaskUpdated, Task: &t})
}

func (s *Scheduler) emitLog(msg string) {
	s.emit(Event{Kind: EventLog, Message: msg})
}

func (s *Scheduler) emitState(msg string) {
	s.emit(Event{Kind: EventState, Message: msg})
}

func (s *Scheduler) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warn("acquire: event buffer full, dropping", "kind", e.Kind)
	}
}
