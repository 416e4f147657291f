// README: Live session; consumes ticks and position samples against a reference route.
package session

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"stride/internal/geo"
	"stride/internal/modules/path"
)

var (
	ErrInvalidState = errors.New("session: invalid state")
	ErrFinished     = errors.New("session: already ended")
)

const (
	DefaultCountdown      = 3
	DefaultOffRouteMeters = 50.0
)

// Clock abstracts wall-clock time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Options struct {
	ID             string
	RouteID        string
	RouteName      string
	Countdown      int
	OffRouteMeters float64
	Clock          Clock
}

// Session tracks one run along a fixed reference route. All methods are safe
// for concurrent use; Runner is the usual single caller.
type Session struct {
	mu sync.Mutex

	id        string
	routeID   string
	routeName string
	reference []geo.Point
	routeKm   float64
	threshold float64
	countdown int
	clock     Clock

	status    Status
	remaining int
	elapsed   int
	coveredKm float64
	traveled  []geo.Point
	last      *geo.Point
	offRoute  bool
	startedAt time.Time
	record    *ActivityRecord
}

// New creates a Pending session. A Countdown of 0 or less skips the countdown;
// OffRouteMeters falls back to the 50 m default when unset.
func New(route path.Path, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.OffRouteMeters <= 0 {
		opts.OffRouteMeters = DefaultOffRouteMeters
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Session{
		id:        opts.ID,
		routeID:   opts.RouteID,
		routeName: opts.RouteName,
		reference: route.Flatten(),
		routeKm:   route.TotalDistanceKm(),
		threshold: opts.OffRouteMeters,
		countdown: max(opts.Countdown, 0),
		clock:     opts.Clock,
		status:    StatusPending,
	}
}

func (s *Session) ID() string { return s.id }

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked()
}

// Start begins the countdown.
func (s *Session) Start() (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusCountingDown); err != nil {
		return Update{}, err
	}
	s.remaining = s.countdown
	if s.remaining == 0 {
		s.activateLocked()
	}
	return s.updateLocked(), nil
}

// Tick advances one second: it counts down, or accrues elapsed time while Active.
// Ticks in Pending or Paused change nothing.
func (s *Session) Tick() (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusFinished, StatusCancelled:
		return Update{}, ErrFinished
	case StatusCountingDown:
		s.remaining--
		if s.remaining <= 0 {
			s.activateLocked()
		}
	case StatusActive:
		s.elapsed++
	}
	return s.updateLocked(), nil
}

// Sample applies a position fix. It reports false when the sample was discarded
// because the session is not Active.
func (s *Session) Sample(smp Sample) (Update, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return Update{}, false, ErrFinished
	}
	if s.status != StatusActive {
		return s.updateLocked(), false, nil
	}

	p := smp.Point
	if s.last != nil {
		s.coveredKm += geo.DistanceMeters(*s.last, p) / 1000
	}
	s.last = &p
	s.traveled = append(s.traveled, p)

	alert := false
	if len(s.reference) > 0 {
		off := geo.NearestDistanceMeters(p, s.reference) > s.threshold
		alert = off && !s.offRoute
		s.offRoute = off
	}

	u := s.updateLocked()
	u.OffRouteAlert = alert
	return u, true, nil
}

func (s *Session) Pause() (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusPaused); err != nil {
		return Update{}, err
	}
	return s.updateLocked(), nil
}

// Resume is only valid from Paused; the countdown cannot be skipped.
func (s *Session) Resume() (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Terminal() && s.status != StatusPaused {
		return Update{}, ErrInvalidState
	}
	if err := s.transitionLocked(StatusActive); err != nil {
		return Update{}, err
	}
	return s.updateLocked(), nil
}

// Cancel abandons the session without producing a record.
func (s *Session) Cancel() (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StatusCancelled); err != nil {
		return Update{}, err
	}
	return s.updateLocked(), nil
}

// Finish ends the session and returns its record. Calling it again returns the same record.
func (s *Session) Finish() (ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record != nil {
		return *s.record, nil
	}
	if err := s.transitionLocked(StatusFinished); err != nil {
		return ActivityRecord{}, err
	}
	rec := ActivityRecord{
		ID:             uuid.NewString(),
		SessionID:      s.id,
		RouteID:        s.routeID,
		RouteName:      s.routeName,
		DistanceKm:     math.Round(s.coveredKm*100) / 100,
		ElapsedSeconds: s.elapsed,
		AveragePace:    s.paceLocked(),
		Traveled:       append([]geo.Point(nil), s.traveled...),
		StartedAt:      s.startedAt,
		FinishedAt:     s.clock.Now(),
	}
	s.record = &rec
	return rec, nil
}

// CoveredKm is the unrounded distance accumulated so far.
func (s *Session) CoveredKm() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coveredKm
}

func (s *Session) LastSample() (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return geo.Point{}, false
	}
	return *s.last, true
}

func (s *Session) Traveled() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geo.Point(nil), s.traveled...)
}

// Pace is zero until some distance has been covered.
func (s *Session) Pace() Pace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paceLocked()
}

// Progress is the covered share of the route, 0..100.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (s *Session) transitionLocked(to Status) error {
	if s.status.Terminal() {
		return ErrFinished
	}
	if !CanTransition(s.status, to) {
		return ErrInvalidState
	}
	s.status = to
	return nil
}

func (s *Session) activateLocked() {
	s.remaining = 0
	s.status = StatusActive
	s.startedAt = s.clock.Now()
}

func (s *Session) paceLocked() Pace {
	if s.coveredKm <= 0 {
		return Pace{}
	}
	secPerKm := float64(s.elapsed) / s.coveredKm
	minutes := int(secPerKm / 60)
	seconds := int(math.Round(secPerKm - float64(minutes)*60))
	if seconds == 60 {
		minutes++
		seconds = 0
	}
	return Pace{Minutes: minutes, Seconds: seconds}
}

func (s *Session) progressLocked() float64 {
	if s.routeKm <= 0 {
		return 0
	}
	return math.Min(s.coveredKm/s.routeKm, 1) * 100
}

func (s *Session) updateLocked() Update {
	u := Update{
		SessionID:      s.id,
		Status:         s.status,
		Countdown:      s.remaining,
		ElapsedSeconds: s.elapsed,
		CoveredKm:      s.coveredKm,
		ProgressPct:    s.progressLocked(),
		Pace:           s.paceLocked(),
		OffRoute:       s.offRoute,
	}
	if s.last != nil {
		p := *s.last
		u.Position = &p
	}
	return u
}
