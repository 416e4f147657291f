// README: Runner drives a session from a tick source, a sample stream and control actions.
package session

import (
	"context"
	"errors"
	"log"
	"time"
)

// Publisher receives every state change (e.g. a live map or a pub/sub fan-out).
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Alerter is told once each time the runner leaves the route.
type Alerter interface {
	OffRoute(ctx context.Context, u Update) error
}

// RecordSink stores the finished activity.
type RecordSink interface {
	SaveActivity(ctx context.Context, rec ActivityRecord) error
}

type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionFinish Action = "finish"
	ActionCancel Action = "cancel"
)

var ErrUnknownAction = errors.New("session: unknown action")

type RunnerDeps struct {
	Publisher Publisher
	Alerter   Alerter
	Sink      RecordSink
}

type control struct {
	action Action
	reply  chan controlResult
}

type controlResult struct {
	update Update
	record *ActivityRecord
	err    error
}

type outgoing struct {
	update Update
	alert  bool
}

// outboxSize bounds how far delivery may fall behind the run loop before it blocks.
const outboxSize = 64

// Runner serialises ticks, samples and control actions for one session in a
// single loop, so everything is applied in arrival order. Updates and alerts
// are delivered in order from a separate goroutine, so a slow publisher does
// not make the loop miss ticks.
type Runner struct {
	sess     *Session
	deps     RunnerDeps
	samples  chan Sample
	controls chan control
	outbox   chan outgoing
	done     chan struct{}
}

func NewRunner(sess *Session, deps RunnerDeps) *Runner {
	return &Runner{
		sess:     sess,
		deps:     deps,
		samples:  make(chan Sample),
		controls: make(chan control),
		outbox:   make(chan outgoing, outboxSize),
		done:     make(chan struct{}),
	}
}

func (r *Runner) Session() *Session { return r.sess }

// Done is closed once Run has returned and every queued update has been delivered.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Run processes events until the session finishes or is cancelled, or ctx ends.
// Cancelling ctx cancels a session that has not finished.
func (r *Runner) Run(ctx context.Context, ticks <-chan time.Time) {
	delivered := make(chan struct{})
	go r.deliver(ctx, delivered)
	defer func() {
		close(r.outbox)
		<-delivered
		close(r.done)
	}()
	for {
		select {
		case <-ctx.Done():
			if _, err := r.sess.Cancel(); err == nil {
				log.Printf("session %s: cancelled by shutdown", r.sess.ID())
			}
			return
		case <-ticks:
			u, err := r.sess.Tick()
			if err != nil {
				return
			}
			r.emit(ctx, outgoing{update: u})
		case smp := <-r.samples:
			u, applied, err := r.sess.Sample(smp)
			if err != nil {
				return
			}
			if !applied {
				continue
			}
			r.emit(ctx, outgoing{update: u, alert: u.OffRouteAlert})
		case c := <-r.controls:
			res := r.apply(ctx, c.action)
			c.reply <- res
			if res.err == nil && (c.action == ActionFinish || c.action == ActionCancel) {
				return
			}
		}
	}
}

// Submit queues a sample. It fails with ErrFinished once the runner has stopped.
func (r *Runner) Submit(ctx context.Context, s Sample) error {
	select {
	case r.samples <- s:
		return nil
	case <-r.done:
		return ErrFinished
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do applies a control action inside the run loop. The record is non-nil only for finish.
func (r *Runner) Do(ctx context.Context, a Action) (Update, *ActivityRecord, error) {
	c := control{action: a, reply: make(chan controlResult, 1)}
	select {
	case r.controls <- c:
	case <-r.done:
		if a == ActionFinish {
			if rec, err := r.sess.Finish(); err == nil {
				return r.sess.Snapshot(), &rec, nil
			}
		}
		return Update{}, nil, ErrFinished
	case <-ctx.Done():
		return Update{}, nil, ctx.Err()
	}
	res := <-c.reply
	return res.update, res.record, res.err
}

func (r *Runner) apply(ctx context.Context, a Action) controlResult {
	var (
		u   Update
		err error
	)
	switch a {
	case ActionStart:
		u, err = r.sess.Start()
	case ActionPause:
		u, err = r.sess.Pause()
	case ActionResume:
		u, err = r.sess.Resume()
	case ActionCancel:
		u, err = r.sess.Cancel()
	case ActionFinish:
		rec, ferr := r.sess.Finish()
		if ferr != nil {
			return controlResult{err: ferr}
		}
		u = r.sess.Snapshot()
		r.emit(ctx, outgoing{update: u})
		if r.deps.Sink != nil {
			if err := r.deps.Sink.SaveActivity(ctx, rec); err != nil {
				log.Printf("session %s: save activity %s failed: %v", r.sess.ID(), rec.ID, err)
			}
		}
		return controlResult{update: u, record: &rec}
	default:
		return controlResult{err: ErrUnknownAction}
	}
	if err != nil {
		return controlResult{err: err}
	}
	r.emit(ctx, outgoing{update: u})
	return controlResult{update: u}
}

func (r *Runner) emit(ctx context.Context, o outgoing) {
	select {
	case r.outbox <- o:
	case <-ctx.Done():
	}
}

func (r *Runner) deliver(ctx context.Context, delivered chan<- struct{}) {
	defer close(delivered)
	for o := range r.outbox {
		if r.deps.Publisher != nil {
			if err := r.deps.Publisher.Publish(ctx, o.update); err != nil {
				log.Printf("session %s: publish failed: %v", r.sess.ID(), err)
			}
		}
		if o.alert && r.deps.Alerter != nil {
			if err := r.deps.Alerter.OffRoute(ctx, o.update); err != nil {
				log.Printf("session %s: off-route alert failed: %v", r.sess.ID(), err)
			}
		}
	}
}
