package replay

import (
	"fmt"

	"stride/internal/modules/path"
	"stride/internal/modules/session"
)

type Options struct {
	RouteID        string
	RouteName      string
	Countdown      int
	OffRouteMeters float64
}

type Result struct {
	Record    session.ActivityRecord
	Alerts    int
	Discarded int
}

// Run plays a recorded track through a live session against route. Ticks are
// synthesised from whole seconds between sample timestamps; a track without
// timestamps advances one second per sample.
func Run(route path.Path, track Track, opts Options) (Result, error) {
	if len(track.Samples) == 0 {
		return Result{}, fmt.Errorf("replay: track has no samples")
	}
	s := session.New(route, session.Options{
		RouteID:        opts.RouteID,
		RouteName:      opts.RouteName,
		Countdown:      opts.Countdown,
		OffRouteMeters: opts.OffRouteMeters,
	})
	if _, err := s.Start(); err != nil {
		return Result{}, err
	}
	for i := 0; i < opts.Countdown; i++ {
		if _, err := s.Tick(); err != nil {
			return Result{}, err
		}
	}

	var res Result
	first := track.Samples[0].At
	emitted := 0
	for i, smp := range track.Samples {
		due := i
		if !first.IsZero() && !smp.At.IsZero() {
			due = int(smp.At.Sub(first).Seconds())
		}
		for ; emitted < due; emitted++ {
			if _, err := s.Tick(); err != nil {
				return Result{}, err
			}
		}

		u, applied, err := s.Sample(smp)
		if err != nil {
			return Result{}, fmt.Errorf("sample %d: %w", i, err)
		}
		if !applied {
			res.Discarded++
		}
		if u.OffRouteAlert {
			res.Alerts++
		}
	}

	rec, err := s.Finish()
	if err != nil {
		return Result{}, err
	}
	res.Record = rec
	return res, nil
}
