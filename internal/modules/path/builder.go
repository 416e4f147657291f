// README: Path builder; applies edit operations, snapping new geometry through the routing gateway.
package path

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"stride/internal/geo"
	"stride/internal/routing"
)

var (
	ErrIndexOutOfRange = errors.New("path: index out of range")
	ErrTooFewPoints    = errors.New("path: freehand stroke needs at least 3 points")
	ErrNothingToUndo   = errors.New("path: nothing to undo")
)

// Snapper is the routing surface the builder needs. *routing.Gateway satisfies it.
type Snapper interface {
	SnapSegment(ctx context.Context, from, to geo.Point) routing.Snap
	MatchTrace(ctx context.Context, raw []geo.Point) routing.Snap
}

// Change is delivered to listeners after every applied mutation.
type Change struct {
	Revision uint64
	Path     Path
}

// Builder owns one path being edited.
//
// Operations that need routing run one at a time in arrival order. Each one
// records the revision it started from and is dropped if Clear or Undo moved
// the revision while it was waiting on the gateway.
type Builder struct {
	gw Snapper

	mu        sync.Mutex
	path      Path
	revision  uint64
	hist      history
	listeners []func(Change)
	tail      chan struct{} // closed when the last queued routing op finishes
}

func NewBuilder(gw Snapper, historyDepth int) *Builder {
	tail := make(chan struct{})
	close(tail)
	return &Builder{
		gw:   gw,
		hist: newHistory(historyDepth),
		tail: tail,
	}
}

// OnChange registers fn. Listeners run while the builder is locked and must not call back into it.
func (b *Builder) OnChange(fn func(Change)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Snapshot returns the current path and its revision.
func (b *Builder) Snapshot() (Path, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path, b.revision
}

func (b *Builder) Path() Path {
	p, _ := b.Snapshot()
	return p
}

func (b *Builder) Revision() uint64 {
	_, rev := b.Snapshot()
	return rev
}

// CanUndo reports whether a snapshot is available.
func (b *Builder) CanUndo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hist.len() > 0
}

// ---------------------------------------------------------------------------
// Routing-bound operations
// ---------------------------------------------------------------------------

// AddPoint appends an anchor, snapping the segment from the previous anchor.
func (b *Builder) AddPoint(ctx context.Context, p geo.Point) error {
	return b.queued(ctx, "add point", func(cur Path) (Path, bool, error) {
		return cur.withAppended(b.segmentTo(ctx, cur, p)), true, nil
	})
}

// CloseLoop routes back to the first anchor. Paths with fewer than two anchors are left alone.
func (b *Builder) CloseLoop(ctx context.Context) error {
	return b.queued(ctx, "close loop", func(cur Path) (Path, bool, error) {
		if cur.Len() < 2 {
			return cur, false, nil
		}
		return cur.withAppended(b.segmentTo(ctx, cur, cur.first())), true, nil
	})
}

// AddFreehandStroke map-matches a drawn trace and appends it as one segment
// anchored at the trace's last raw point.
func (b *Builder) AddFreehandStroke(ctx context.Context, raw []geo.Point) error {
	if len(raw) < 3 {
		return ErrTooFewPoints
	}
	raw = append([]geo.Point(nil), raw...)
	anchor := raw[len(raw)-1]

	return b.queued(ctx, "freehand stroke", func(cur Path) (Path, bool, error) {
		matched := b.gw.MatchTrace(ctx, raw)
		seg := Segment{Anchor: anchor, Geometry: matched.Points, Snapped: matched.Snapped}

		if !cur.IsEmpty() {
			from := cur.last()
			bridge := b.gw.SnapSegment(ctx, from, matched.Points[0])
			seg.Geometry = join(fit(bridge.Points, from, matched.Points[0]), matched.Points)
			seg.Snapped = bridge.Snapped && matched.Snapped
		}
		if seg.Geometry[len(seg.Geometry)-1] != anchor {
			seg.Geometry = append(seg.Geometry[:len(seg.Geometry):len(seg.Geometry)], anchor)
		}
		return cur.withAppended(seg), true, nil
	})
}

// MovePoint relocates anchor i and re-snaps the segments on both sides of it.
// At most two routing calls are made, concurrently.
func (b *Builder) MovePoint(ctx context.Context, i int, p geo.Point) error {
	return b.queued(ctx, "move point", func(cur Path) (Path, bool, error) {
		segs := cur.Segments()
		if i < 0 || i >= len(segs) {
			return cur, false, ErrIndexOutOfRange
		}

		var g errgroup.Group
		if i == 0 {
			segs[0] = origin(p)
		} else {
			from := segs[i-1].Anchor
			g.Go(func() error {
				snap := b.gw.SnapSegment(ctx, from, p)
				segs[i] = Segment{Anchor: p, Geometry: fit(snap.Points, from, p), Snapped: snap.Snapped}
				return nil
			})
		}
		if i+1 < len(segs) {
			to := segs[i+1].Anchor
			g.Go(func() error {
				snap := b.gw.SnapSegment(ctx, p, to)
				segs[i+1] = Segment{Anchor: to, Geometry: fit(snap.Points, p, to), Snapped: snap.Snapped}
				return nil
			})
		}
		_ = g.Wait()
		return Path{segments: segs}, true, nil
	})
}

// DeletePoint removes anchor i. It queues like every other edit; removing the
// first or last anchor makes no routing call, a middle anchor is bridged with one.
func (b *Builder) DeletePoint(ctx context.Context, i int) error {
	return b.queued(ctx, "delete point", func(cur Path) (Path, bool, error) {
		segs := cur.Segments()
		if i < 0 || i >= len(segs) {
			return cur, false, ErrIndexOutOfRange
		}
		if i == 0 || i == len(segs)-1 {
			return deleteEdge(cur, i), true, nil
		}
		from, to := segs[i-1].Anchor, segs[i+1].Anchor
		snap := b.gw.SnapSegment(ctx, from, to)
		bridge := Segment{Anchor: to, Geometry: fit(snap.Points, from, to), Snapped: snap.Snapped}

		out := make([]Segment, 0, len(segs)-1)
		out = append(out, segs[:i]...)
		out = append(out, bridge)
		out = append(out, segs[i+2:]...)
		return Path{segments: out}, true, nil
	})
}

func deleteEdge(cur Path, i int) Path {
	segs := cur.Segments()
	if i == len(segs)-1 {
		return Path{segments: segs[:i]}
	}
	rest := segs[1:]
	rest[0] = origin(rest[0].Anchor)
	return Path{segments: rest}
}

// ---------------------------------------------------------------------------
// Immediate operations
// ---------------------------------------------------------------------------

// Undo restores the most recent snapshot. It reports false when there is nothing to undo.
func (b *Builder) Undo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.hist.pop()
	if !ok {
		return false
	}
	b.path = prev
	b.revision++
	b.notifyLocked()
	return true
}

// Clear empties the path. In-flight routing results are discarded.
func (b *Builder) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyLocked(Path{})
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// segmentTo builds the segment from cur's last anchor to p.
func (b *Builder) segmentTo(ctx context.Context, cur Path, p geo.Point) Segment {
	if cur.IsEmpty() {
		return origin(p)
	}
	from := cur.last()
	snap := b.gw.SnapSegment(ctx, from, p)
	return Segment{Anchor: p, Geometry: fit(snap.Points, from, p), Snapped: snap.Snapped}
}

// queued runs op after every previously queued op has finished, then applies its
// result unless the revision moved meanwhile.
func (b *Builder) queued(ctx context.Context, name string, op func(cur Path) (Path, bool, error)) error {
	b.mu.Lock()
	prev := b.tail
	done := make(chan struct{})
	b.tail = done
	b.mu.Unlock()

	select {
	case <-prev:
	case <-ctx.Done():
		go func() {
			<-prev
			close(done)
		}()
		return ctx.Err()
	}
	defer close(done)

	cur, rev := b.Snapshot()
	next, changed, err := op(cur)
	if err != nil || !changed {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revision != rev {
		log.Printf("path: discarding stale %s (started at revision %d, now %d)", name, rev, b.revision)
		return nil
	}
	b.applyLocked(next)
	return nil
}

func (b *Builder) applyLocked(next Path) {
	b.hist.push(b.path)
	b.path = next
	b.revision++
	b.notifyLocked()
}

func (b *Builder) notifyLocked() {
	c := Change{Revision: b.revision, Path: b.path}
	for _, fn := range b.listeners {
		fn(c)
	}
}
