package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stride/internal/geo"
)

// ---------------------------------------------------------------------------
// In-memory collaborators
// ---------------------------------------------------------------------------

type memPublisher struct {
	mu      sync.Mutex
	updates []Update
}

func (m *memPublisher) Publish(_ context.Context, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return nil
}

func (m *memPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

type memAlerter struct {
	mu     sync.Mutex
	alerts int
}

func (m *memAlerter) OffRoute(context.Context, Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts++
	return nil
}

type memSink struct {
	mu      sync.Mutex
	records []ActivityRecord
	err     error
}

func (m *memSink) SaveActivity(_ context.Context, rec ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

type harness struct {
	runner *Runner
	ticks  chan time.Time
	pub    *memPublisher
	alert  *memAlerter
	sink   *memSink
	cancel context.CancelFunc
}

func startRunner(t *testing.T, countdown int) *harness {
	t.Helper()
	h := &harness{
		ticks: make(chan time.Time),
		pub:   &memPublisher{},
		alert: &memAlerter{},
		sink:  &memSink{},
	}
	sess := New(kmRoute(), Options{Countdown: countdown, RouteID: "route-1"})
	h.runner = NewRunner(sess, RunnerDeps{Publisher: h.pub, Alerter: h.alert, Sink: h.sink})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go h.runner.Run(ctx, h.ticks)
	return h
}

func (h *harness) do(t *testing.T, a Action) Update {
	t.Helper()
	u, _, err := h.runner.Do(context.Background(), a)
	if err != nil {
		t.Fatalf("%s: %v", a, err)
	}
	return u
}

func (h *harness) submit(t *testing.T, p geo.Point) {
	t.Helper()
	if err := h.runner.Submit(context.Background(), Sample{Point: p, At: time.Now()}); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

// finish ends the run and waits until every queued update has been delivered.
func (h *harness) finish(t *testing.T) {
	t.Helper()
	h.do(t, ActionFinish)
	select {
	case <-h.runner.Done():
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after finish")
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunnerFullRun(t *testing.T) {
	h := startRunner(t, 3)
	h.do(t, ActionStart)
	for i := 0; i < 3; i++ {
		h.ticks <- time.Now()
	}
	h.submit(t, routeStart)
	for i := 0; i < 300; i++ {
		h.ticks <- time.Now()
	}
	h.submit(t, routeEnd)

	u, rec, err := h.runner.Do(context.Background(), ActionFinish)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if rec == nil || u.Status != StatusFinished {
		t.Fatalf("expected a record and finished status")
	}
	if rec.ElapsedSeconds != 300 || rec.DistanceKm != 1.0 || rec.RouteID != "route-1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	select {
	case <-h.runner.Done():
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after finish")
	}
	if len(h.sink.records) != 1 || h.sink.records[0].ID != rec.ID {
		t.Fatalf("record not saved exactly once: %+v", h.sink.records)
	}

	_, again, err := h.runner.Do(context.Background(), ActionFinish)
	if err != nil || again == nil || again.ID != rec.ID {
		t.Fatalf("finish after stop should return the same record: %v %v", again, err)
	}
	if err := h.runner.Submit(context.Background(), Sample{Point: routeStart}); !errors.Is(err, ErrFinished) {
		t.Fatalf("submit after finish: %v", err)
	}
}

func TestRunnerAlertsOncePerExcursion(t *testing.T) {
	h := startRunner(t, 0)
	h.do(t, ActionStart)

	for _, p := range []geo.Point{routeStart, offPoint, offPoint, offPoint, routeStart} {
		h.submit(t, p)
	}
	// A control round-trip guarantees every queued sample has been handled.
	u := h.do(t, ActionPause)
	if u.OffRoute {
		t.Fatalf("expected back on route")
	}
	h.finish(t)
	h.alert.mu.Lock()
	defer h.alert.mu.Unlock()
	if h.alert.alerts != 1 {
		t.Fatalf("expected a single alert, got %d", h.alert.alerts)
	}
}

func TestRunnerDropsPausedSamples(t *testing.T) {
	h := startRunner(t, 0)
	h.do(t, ActionStart)
	h.submit(t, routeStart)
	h.do(t, ActionPause)
	for i := 0; i < 5; i++ {
		h.submit(t, routeEnd)
	}
	u := h.do(t, ActionResume)

	if u.CoveredKm != 0 {
		t.Fatalf("paused samples counted: %f km", u.CoveredKm)
	}
	if u.Position == nil || *u.Position != routeStart {
		t.Fatalf("last sample moved while paused: %v", u.Position)
	}
	h.finish(t)
	// start, sample, pause, resume, finish; discarded samples publish nothing.
	if got := h.pub.count(); got != 5 {
		t.Fatalf("expected 5 published updates, got %d", got)
	}
}

type stalledPublisher struct {
	release chan struct{}
	memPublisher
}

func (p *stalledPublisher) Publish(ctx context.Context, u Update) error {
	<-p.release
	return p.memPublisher.Publish(ctx, u)
}

func TestRunnerTicksWhilePublisherStalls(t *testing.T) {
	pub := &stalledPublisher{release: make(chan struct{})}
	runner := NewRunner(New(kmRoute(), Options{}), RunnerDeps{Publisher: pub})
	ticks := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx, ticks)

	if _, _, err := runner.Do(ctx, ActionStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 10; i++ {
		select {
		case ticks <- time.Now():
		case <-time.After(time.Second):
			t.Fatalf("tick %d blocked behind the publisher", i)
		}
	}
	close(pub.release)

	_, rec, err := runner.Do(ctx, ActionFinish)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if rec.ElapsedSeconds != 10 {
		t.Fatalf("elapsed = %d, want 10", rec.ElapsedSeconds)
	}
	<-runner.Done()
	if got := pub.count(); got != 12 {
		t.Fatalf("expected every update delivered, got %d", got)
	}
}

func TestRunnerInvalidAction(t *testing.T) {
	h := startRunner(t, 0)
	if _, _, err := h.runner.Do(context.Background(), ActionPause); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pause before start: %v", err)
	}
	if _, _, err := h.runner.Do(context.Background(), Action("jump")); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unknown action: %v", err)
	}
}

func TestRunnerShutdownCancelsSession(t *testing.T) {
	h := startRunner(t, 3)
	h.do(t, ActionStart)
	h.ticks <- time.Now()
	h.cancel()

	select {
	case <-h.runner.Done():
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop on context cancel")
	}
	u := h.runner.Session().Snapshot()
	if u.Status != StatusCancelled || u.ElapsedSeconds != 0 {
		t.Fatalf("unexpected state after shutdown: %+v", u)
	}
	if len(h.sink.records) != 0 {
		t.Fatalf("cancelled session must not produce a record")
	}
}

func TestRunnerSinkFailureStillFinishes(t *testing.T) {
	h := startRunner(t, 0)
	h.sink.err = errors.New("db down")
	h.do(t, ActionStart)
	h.submit(t, routeStart)

	_, rec, err := h.runner.Do(context.Background(), ActionFinish)
	if err != nil || rec == nil {
		t.Fatalf("finish should succeed even if the sink fails: %v", err)
	}
}
