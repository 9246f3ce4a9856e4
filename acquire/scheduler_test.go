package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSession satisfies CaptureSession without a browser. Goto behavior is
// scriptable through onGoto so tests can fail or pause mid-navigation.
type fakeSession struct {
	mu         sync.Mutex
	open       bool
	openErr    error
	captureErr error
	onGoto     func(url string) error
	gotoCalls  []string
	captured   []string
}

func (f *fakeSession) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeSession) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSession) Goto(ctx context.Context, url string) error {
	f.mu.Lock()
	f.gotoCalls = append(f.gotoCalls, url)
	hook := f.onGoto
	f.mu.Unlock()
	if hook != nil {
		return hook(url)
	}
	return nil
}

func (f *fakeSession) CapturePage(ctx context.Context, outDir, baseName string) (CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return CaptureResult{}, f.captureErr
	}
	f.captured = append(f.captured, baseName)
	return CaptureResult{
		CurrentURL: "final",
		HTMLPath:   filepath.Join(outDir, baseName+".html"),
		URLPath:    filepath.Join(outDir, baseName+".url.txt"),
	}, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeSession) gotoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gotoCalls)
}

func (f *fakeSession) capturedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.captured...)
}

func newTestScheduler(t *testing.T, fs *fakeSession) *Scheduler {
	t.Helper()
	s := New(fs, Config{
		OutputDir:       "out",
		StabilizeDelay:  2 * time.Millisecond,
		PreCaptureDelay: 2 * time.Millisecond,
		Tick:            time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() {
		s.Stop()
		s.Wait()
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func taskByID(t *testing.T, s *Scheduler, id int) Task {
	t.Helper()
	for _, task := range s.Tasks() {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %d not found", id)
	return Task{}
}

func TestAddURLsAssignsMonotonicIDs(t *testing.T) {
	s := newTestScheduler(t, &fakeSession{})

	ids := s.AddURLs([]string{"https://a.example/x", "  ", "https://b.example/y"})
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("ids = %v, want [1 2]", ids)
	}
	more := s.AddURLs([]string{"https://c.example/z"})
	if len(more) != 1 || more[0] != 3 {
		t.Fatalf("ids = %v, want [3]", more)
	}
	if got := taskByID(t, s, 1).Status; got != StatusQueued {
		t.Fatalf("status = %q, want queued", got)
	}
}

func TestWorkerCapturesInOrder(t *testing.T) {
	fs := &fakeSession{}
	s := newTestScheduler(t, fs)
	s.AddURLs([]string{"https://www.quantalys.com/Fonds/1", "https://www.morningstar.fr/fr/funds/2"})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "both tasks captured", func() bool {
		return taskByID(t, s, 1).Status == StatusCaptured &&
			taskByID(t, s, 2).Status == StatusCaptured
	})

	names := fs.capturedNames()
	if len(names) != 2 {
		t.Fatalf("captured %d pages, want 2", len(names))
	}
	if !strings.HasPrefix(names[0], "0001_quantalys_") {
		t.Fatalf("first base name = %q", names[0])
	}
	if !strings.HasPrefix(names[1], "0002_morningstar_") {
		t.Fatalf("second base name = %q", names[1])
	}
	if got := taskByID(t, s, 1).SavedPath; got != filepath.Join("out", names[0]+".html") {
		t.Fatalf("saved path = %q", got)
	}

	waitFor(t, "drained queue goes idle", func() bool { return s.State() == RunIdle })
	if !fs.IsOpen() {
		t.Fatal("session must stay open after the queue drains")
	}
}

func TestTaskFailureDoesNotHaltWorker(t *testing.T) {
	fs := &fakeSession{}
	fs.onGoto = func(url string) error {
		if strings.Contains(url, "bad") {
			return errors.New("net::ERR_NAME_NOT_RESOLVED")
		}
		return nil
	}
	s := newTestScheduler(t, fs)
	s.AddURLs([]string{"https://bad.example/", "https://good.example/"})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second task captured past the failure", func() bool {
		return taskByID(t, s, 2).Status == StatusCaptured
	})

	failed := taskByID(t, s, 1)
	if failed.Status != StatusError {
		t.Fatalf("status = %q, want error", failed.Status)
	}
	if !strings.Contains(failed.Error, "navigation:") {
		t.Fatalf("error = %q, want navigation context", failed.Error)
	}
	if failed.SavedPath != "" {
		t.Fatalf("failed task has saved path %q", failed.SavedPath)
	}
}

func TestPauseDuringNavigationThenResumeRestart(t *testing.T) {
	fs := &fakeSession{}
	s := newTestScheduler(t, fs)

	var once sync.Once
	fs.onGoto = func(string) error {
		once.Do(s.Pause)
		return nil
	}
	s.AddURLs([]string{"https://www.quantalys.com/Fonds/1"})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "task paused mid-flight", func() bool {
		return taskByID(t, s, 1).Status == StatusPaused
	})
	if s.State() != RunPaused {
		t.Fatalf("state = %v, want paused", s.State())
	}

	s.ResumeRestart()
	waitFor(t, "restarted task captured", func() bool {
		return taskByID(t, s, 1).Status == StatusCaptured
	})

	if n := fs.gotoCount(); n != 2 {
		t.Fatalf("goto called %d times, want 2 (fresh navigation on restart)", n)
	}
	if n := len(s.Tasks()); n != 1 {
		t.Fatalf("%d tasks, want 1 (restart reuses the id)", n)
	}
	if n := len(fs.capturedNames()); n != 1 {
		t.Fatalf("%d captures, want 1", n)
	}
}

func TestRetryLastBeforeAnyCapture(t *testing.T) {
	s := newTestScheduler(t, &fakeSession{})
	s.AddURLs([]string{"https://a.example/"})

	if id := s.RetryLast(); id != 0 {
		t.Fatalf("retry id = %d, want 0 with no capture yet", id)
	}
	if n := len(s.Tasks()); n != 1 {
		t.Fatalf("%d tasks, want 1 (no clone created)", n)
	}
}

func TestRetryLastClonesCapturedURLAtHead(t *testing.T) {
	fs := &fakeSession{}
	s := newTestScheduler(t, fs)
	s.AddURLs([]string{"https://www.quantalys.com/Fonds/1"})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first capture", func() bool {
		return taskByID(t, s, 1).Status == StatusCaptured
	})

	id := s.RetryLast()
	if id != 2 {
		t.Fatalf("retry id = %d, want 2", id)
	}
	clone := taskByID(t, s, id)
	if clone.URL != "https://www.quantalys.com/Fonds/1" || clone.Status != StatusQueued {
		t.Fatalf("clone = %+v", clone)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "retried capture", func() bool {
		return taskByID(t, s, id).Status == StatusCaptured
	})

	// Original record untouched apart from staying captured.
	if got := taskByID(t, s, 1).Status; got != StatusCaptured {
		t.Fatalf("original status = %q", got)
	}
	if n := len(fs.capturedNames()); n != 2 {
		t.Fatalf("%d captures, want 2", n)
	}
}

func TestStartPropagatesSessionOpenError(t *testing.T) {
	boom := errors.New("no compatible browser found")
	s := newTestScheduler(t, &fakeSession{openErr: boom})

	err := s.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped open failure", err)
	}
	if s.State() != RunIdle {
		t.Fatalf("state = %v, want idle after failed start", s.State())
	}
}

func TestStopIsFinal(t *testing.T) {
	s := newTestScheduler(t, &fakeSession{})
	s.Stop()
	s.Wait()
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("start after stop must fail")
	}
}

func TestCaptureFailureMarksTask(t *testing.T) {
	fs := &fakeSession{captureErr: errors.New("eval: target closed")}
	s := newTestScheduler(t, fs)
	s.AddURLs([]string{"https://a.example/"})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "capture failure surfaces", func() bool {
		return taskByID(t, s, 1).Status == StatusError
	})
	if got := taskByID(t, s, 1).Error; !strings.Contains(got, "capture:") {
		t.Fatalf("error = %q, want capture context", got)
	}
}

func TestEventOrderPerTask(t *testing.T) {
	fs := &fakeSession{}
	s := newTestScheduler(t, fs)
	s.AddURLs([]string{"https://www.quantalys.com/Fonds/1"})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "capture", func() bool {
		return taskByID(t, s, 1).Status == StatusCaptured
	})
	s.Stop()
	s.Wait()

	var statuses []Status
	for {
		select {
		case e := <-s.Events():
			if e.Kind == EventTaskUpdated && e.Task != nil && e.Task.ID == 1 {
				statuses = append(statuses, e.Task.Status)
			}
			continue
		default:
		}
		break
	}

	want := []Status{StatusQueued, StatusNavigating, StatusNavDone, StatusCaptured}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
}

func TestDeque(t *testing.T) {
	var d deque
	d.PushBack(1)
	d.PushBack(2)
	d.PushFront(3)

	if got := d.Len(); got != 3 {
		t.Fatalf("len = %d", got)
	}
	if id, ok := d.PopFront(); !ok || id != 3 {
		t.Fatalf("pop = %d,%v, want head insert first", id, ok)
	}
	if !d.Remove(2) {
		t.Fatal("remove existing id failed")
	}
	if d.Remove(2) {
		t.Fatal("remove absent id reported true")
	}
	if got := d.Count(1); got != 1 {
		t.Fatalf("count = %d", got)
	}
	if id, ok := d.PopFront(); !ok || id != 1 {
		t.Fatalf("pop = %d,%v", id, ok)
	}
	if _, ok := d.PopFront(); ok {
		t.Fatal("pop from empty deque reported ok")
	}
}
