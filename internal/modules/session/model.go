// README: Live session status definitions, samples and activity records.
package session

import (
	"fmt"
	"time"

	"stride/internal/geo"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusCountingDown Status = "counting_down"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusFinished     Status = "finished"
	StatusCancelled    Status = "cancelled"
)

// AllowedTransitions represents the session state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:      {StatusCountingDown, StatusCancelled},
	StatusCountingDown: {StatusActive, StatusCancelled},
	StatusActive:       {StatusPaused, StatusFinished, StatusCancelled},
	StatusPaused:       {StatusActive, StatusFinished, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Sample is one position fix.
type Sample struct {
	Point geo.Point `json:"point"`
	At    time.Time `json:"at"`
}

// Pace is time per kilometre.
type Pace struct {
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

func (p Pace) String() string {
	return fmt.Sprintf("%d:%02d", p.Minutes, p.Seconds)
}

// Update is the observable state after a tick, sample or control action.
type Update struct {
	SessionID      string     `json:"session_id"`
	Status         Status     `json:"status"`
	Countdown      int        `json:"countdown"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	CoveredKm      float64    `json:"covered_km"`
	ProgressPct    float64    `json:"progress_pct"`
	Pace           Pace       `json:"pace"`
	Position       *geo.Point `json:"position,omitempty"`
	OffRoute       bool       `json:"off_route"`
	// OffRouteAlert is set only on the update where the runner left the route.
	OffRouteAlert bool `json:"off_route_alert,omitempty"`
}

// ActivityRecord is the immutable summary produced by Finish.
type ActivityRecord struct {
	ID             string      `json:"id"`
	SessionID      string      `json:"session_id"`
	RouteID        string      `json:"route_id"`
	RouteName      string      `json:"route_name"`
	DistanceKm     float64     `json:"distance_km"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	AveragePace    Pace        `json:"average_pace"`
	Traveled       []geo.Point `json:"traveled"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
}

// FormatElapsed renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatElapsed(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
