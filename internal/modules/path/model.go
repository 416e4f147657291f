// README: Path model; immutable segments built by the Builder.
package path

import (
	"math"

	"stride/internal/geo"
)

// elevationGainPerKm is the flat-terrain estimate used until real elevation data exists.
const elevationGainPerKm = 15.0

// Segment is the geometry leading to one user-placed anchor. Geometry always ends at Anchor;
// the first segment of a path normally holds only [Anchor].
type Segment struct {
	Anchor   geo.Point   `json:"anchor"`
	Geometry []geo.Point `json:"geometry"`
	Snapped  bool        `json:"snapped"`
}

// Path is an immutable ordered list of segments. Values share geometry slices,
// so neither the segments nor their geometry may be modified in place.
type Path struct {
	segments []Segment
}

func NewPath(segments ...Segment) Path {
	return Path{segments: append([]Segment(nil), segments...)}
}

func (p Path) Len() int      { return len(p.segments) }
func (p Path) IsEmpty() bool { return len(p.segments) == 0 }

// Segments returns a copy of the segment list.
func (p Path) Segments() []Segment {
	return append([]Segment(nil), p.segments...)
}

func (p Path) Anchors() []geo.Point {
	out := make([]geo.Point, len(p.segments))
	for i, s := range p.segments {
		out[i] = s.Anchor
	}
	return out
}

// Flatten concatenates segment geometries, dropping the boundary point two
// adjacent segments share.
func (p Path) Flatten() []geo.Point {
	var out []geo.Point
	for _, s := range p.segments {
		for i, pt := range s.Geometry {
			if i == 0 && len(out) > 0 && out[len(out)-1] == pt {
				continue
			}
			out = append(out, pt)
		}
	}
	return out
}

func (p Path) TotalDistanceKm() float64 {
	return geo.LengthKm(p.Flatten())
}

func (p Path) EstimatedElevationGainM() int {
	return int(math.Round(p.TotalDistanceKm() * elevationGainPerKm))
}

func (p Path) first() geo.Point { return p.segments[0].Anchor }
func (p Path) last() geo.Point  { return p.segments[len(p.segments)-1].Anchor }

func (p Path) withAppended(s Segment) Path {
	segs := make([]Segment, len(p.segments), len(p.segments)+1)
	copy(segs, p.segments)
	return Path{segments: append(segs, s)}
}

// origin is the segment shape for a path's first anchor.
func origin(p geo.Point) Segment {
	return Segment{Anchor: p, Geometry: []geo.Point{p}}
}

// fit forces pts to start at from and end at to so consecutive segments never gap.
func fit(pts []geo.Point, from, to geo.Point) []geo.Point {
	out := make([]geo.Point, 0, len(pts)+2)
	if len(pts) == 0 || pts[0] != from {
		out = append(out, from)
	}
	out = append(out, pts...)
	if out[len(out)-1] != to {
		out = append(out, to)
	}
	return out
}

// join appends b to a, skipping b's first point when it repeats a's last.
func join(a, b []geo.Point) []geo.Point {
	out := make([]geo.Point, 0, len(a)+len(b))
	out = append(out, a...)
	for i, pt := range b {
		if i == 0 && len(out) > 0 && out[len(out)-1] == pt {
			continue
		}
		out = append(out, pt)
	}
	return out
}

// FromPolyline wraps an existing line (e.g. a recorded route) as a single-segment path.
func FromPolyline(line []geo.Point) Path {
	if len(line) == 0 {
		return Path{}
	}
	return NewPath(Segment{
		Anchor:   line[len(line)-1],
		Geometry: append([]geo.Point(nil), line...),
	})
}
