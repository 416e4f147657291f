package routing

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"stride/internal/geo"
)

// snapToRoadsMaxPoints is the Roads API limit per request.
const snapToRoadsMaxPoints = 100

// Google routes with the Directions API (walking) and matches traces with the Roads API.
type Google struct {
	client *maps.Client
}

// NewGoogle creates a Google backend. Extra options (e.g. maps.WithBaseURL) are passed to the client.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Google{client: client}, nil
}

func (g *Google) Route(ctx context.Context, from, to geo.Point) ([]geo.Point, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLngString(from),
		Destination: latLngString(to),
		Mode:        maps.TravelModeWalking,
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	decoded, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode overview polyline: %w", err)
	}
	return fromLatLngs(decoded), nil
}

func (g *Google) Match(ctx context.Context, trace []geo.Point) ([]geo.Point, error) {
	var out []geo.Point
	for start := 0; start < len(trace); start += snapToRoadsMaxPoints {
		end := min(start+snapToRoadsMaxPoints, len(trace))
		path := make([]maps.LatLng, 0, end-start)
		for _, p := range trace[start:end] {
			path = append(path, maps.LatLng{Lat: p.Lat, Lng: p.Lng})
		}

		resp, err := g.client.SnapToRoad(ctx, &maps.SnapToRoadRequest{Path: path, Interpolate: true})
		if err != nil {
			return nil, fmt.Errorf("roads api error: %w", err)
		}
		for _, sp := range resp.SnappedPoints {
			out = append(out, geo.Point{Lat: sp.Location.Lat, Lng: sp.Location.Lng})
		}
	}
	return out, nil
}

func latLngString(p geo.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func fromLatLngs(lls []maps.LatLng) []geo.Point {
	out := make([]geo.Point, len(lls))
	for i, ll := range lls {
		out[i] = geo.Point{Lat: ll.Lat, Lng: ll.Lng}
	}
	return out
}
