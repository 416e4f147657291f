// README: Routing gateway; wraps a routing backend with rate limiting, timeouts and straight-line fallback.
package routing

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/time/rate"

	"stride/internal/config"
	"stride/internal/geo"
)

// ErrShortGeometry is reported by backends whose response carries fewer than two points.
var ErrShortGeometry = errors.New("routing: geometry has fewer than two points")

// Router is a routing backend. Implementations may fail; Gateway absorbs the failures.
type Router interface {
	// Route returns a walkable polyline from `from` to `to`.
	Route(ctx context.Context, from, to geo.Point) ([]geo.Point, error)
	// Match snaps an ordered trace onto the way network.
	Match(ctx context.Context, trace []geo.Point) ([]geo.Point, error)
}

// Snap is the outcome of a gateway call. Snapped is false when the fallback geometry was used.
type Snap struct {
	Points  []geo.Point
	Snapped bool
}

// Gateway never fails. It is stateless apart from the shared limiter, so one
// instance may serve every builder in the process.
type Gateway struct {
	router  Router
	limiter *rate.Limiter
	timeout time.Duration
	stride  int
}

func NewGateway(router Router, cfg config.RoutingConfig) *Gateway {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	stride := cfg.MatchStride
	if stride <= 0 {
		stride = 5
	}
	return &Gateway{
		router:  router,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		stride:  stride,
	}
}

// SnapSegment routes from -> to. On any failure it returns the straight segment [from, to].
func (g *Gateway) SnapSegment(ctx context.Context, from, to geo.Point) Snap {
	fallback := Snap{Points: []geo.Point{from, to}}
	if g.router == nil {
		return fallback
	}

	ctx, cancel := g.callContext(ctx)
	defer cancel()
	if err := g.limiter.Wait(ctx); err != nil {
		log.Printf("routing: snap segment skipped: %v", err)
		return fallback
	}

	pts, err := g.router.Route(ctx, from, to)
	if err == nil && len(pts) < 2 {
		err = ErrShortGeometry
	}
	if err != nil {
		log.Printf("routing: snap segment fallback (%v -> %v): %v", from, to, err)
		return fallback
	}
	return Snap{Points: pts, Snapped: true}
}

// MatchTrace downsamples raw and snaps it onto the way network. On any failure
// the raw trace is returned unchanged.
func (g *Gateway) MatchTrace(ctx context.Context, raw []geo.Point) Snap {
	fallback := Snap{Points: append([]geo.Point(nil), raw...)}
	sampled := Downsample(raw, g.stride)
	if g.router == nil || len(sampled) < 2 {
		return fallback
	}

	ctx, cancel := g.callContext(ctx)
	defer cancel()
	if err := g.limiter.Wait(ctx); err != nil {
		log.Printf("routing: match trace skipped: %v", err)
		return fallback
	}

	pts, err := g.router.Match(ctx, sampled)
	if err == nil && len(pts) < 2 {
		err = ErrShortGeometry
	}
	if err != nil {
		log.Printf("routing: match trace fallback (%d points): %v", len(raw), err)
		return fallback
	}
	return Snap{Points: pts, Snapped: true}
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

// Downsample keeps every stride-th point plus the final one.
func Downsample(points []geo.Point, stride int) []geo.Point {
	if stride <= 1 || len(points) <= 2 {
		return append([]geo.Point(nil), points...)
	}
	out := make([]geo.Point, 0, len(points)/stride+2)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	if (len(points)-1)%stride != 0 {
		out = append(out, points[len(points)-1])
	}
	return out
}
