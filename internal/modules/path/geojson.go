package path

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders the flattened path as a LineString feature followed
// by one Point feature per anchor. GeoJSON positions are [lng, lat].
func (p Path) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	pts := p.Flatten()
	line := make(orb.LineString, 0, len(pts))
	for _, pt := range pts {
		line = append(line, orb.Point{pt.Lng, pt.Lat})
	}
	route := geojson.NewFeature(line)
	route.Properties["distance_km"] = p.TotalDistanceKm()
	route.Properties["elevation_gain_m"] = p.EstimatedElevationGainM()
	fc.Append(route)

	for i, a := range p.Anchors() {
		anchor := geojson.NewFeature(orb.Point{a.Lng, a.Lat})
		anchor.Properties["index"] = i
		anchor.Properties["snapped"] = p.segments[i].Snapped
		fc.Append(anchor)
	}
	return fc
}
