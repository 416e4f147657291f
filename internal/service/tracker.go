// README: Tracker starts and looks up live session runners.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"stride/internal/config"
	"stride/internal/modules/path"
	"stride/internal/modules/session"
)

// AlertFactory returns the off-route alerter for a device.
type AlertFactory func(deviceToken string) session.Alerter

type TrackerDeps struct {
	Publisher session.Publisher
	Sink      session.RecordSink
	Alerts    AlertFactory
}

type StartOptions struct {
	RouteID     string
	RouteName   string
	DeviceToken string
}

// Tracker owns every runner started by the API. Runners stop when their
// session ends or when the tracker's context is cancelled.
type Tracker struct {
	ctx    context.Context
	deps   TrackerDeps
	cfg    config.SessionConfig
	retain time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	runners map[string]*session.Runner
}

func NewTracker(ctx context.Context, deps TrackerDeps, cfg config.SessionConfig) *Tracker {
	return &Tracker{
		ctx:     ctx,
		deps:    deps,
		cfg:     cfg,
		retain:  10 * time.Minute,
		runners: make(map[string]*session.Runner),
	}
}

// Start creates a session along route, starts its runner and begins the countdown.
func (t *Tracker) Start(route path.Path, opts StartOptions) (*session.Runner, session.Update, error) {
	sess := session.New(route, session.Options{
		ID:             uuid.NewString(),
		RouteID:        opts.RouteID,
		RouteName:      opts.RouteName,
		Countdown:      t.cfg.CountdownSeconds,
		OffRouteMeters: t.cfg.OffRouteMeters,
	})
	deps := session.RunnerDeps{Publisher: t.deps.Publisher, Sink: t.deps.Sink}
	if t.deps.Alerts != nil && opts.DeviceToken != "" {
		deps.Alerter = t.deps.Alerts(opts.DeviceToken)
	}
	runner := session.NewRunner(sess, deps)

	t.mu.Lock()
	t.runners[sess.ID()] = runner
	t.mu.Unlock()

	interval := t.cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		runner.Run(t.ctx, ticker.C)
		time.AfterFunc(t.retain, func() { t.forget(sess.ID()) })
	}()

	u, _, err := runner.Do(t.ctx, session.ActionStart)
	if err != nil {
		return nil, session.Update{}, err
	}
	return runner, u, nil
}

func (t *Tracker) Get(id string) (*session.Runner, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runners[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Wait blocks until every runner has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	delete(t.runners, id)
	t.mu.Unlock()
}
