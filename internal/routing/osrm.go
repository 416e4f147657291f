// README: OSRM HTTP backend (route + match services, GeoJSON geometries).
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"stride/internal/geo"
)

const DefaultOSRMBaseURL = "https://router.project-osrm.org"

// httpClient is shared by all OSRM requests; callers still bound each call with a context.
var httpClient = &http.Client{Timeout: 30 * time.Second}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry *geojson.Geometry `json:"geometry"`
	} `json:"routes"`
	Matchings []struct {
		Geometry *geojson.Geometry `json:"geometry"`
	} `json:"matchings"`
}

// OSRM talks to an OSRM server using the walking profile.
type OSRM struct {
	baseURL string
	profile string
	client  *http.Client
}

func NewOSRM(baseURL string) *OSRM {
	if baseURL == "" {
		baseURL = DefaultOSRMBaseURL
	}
	return &OSRM{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "walking",
		client:  httpClient,
	}
}

func (o *OSRM) Route(ctx context.Context, from, to geo.Point) ([]geo.Point, error) {
	resp, err := o.call(ctx, "route", []geo.Point{from, to})
	if err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, fmt.Errorf("osrm: no routes in response")
	}
	return lineFromGeometry(resp.Routes[0].Geometry)
}

// Match concatenates every matching OSRM returns; OSRM splits a trace when it
// cannot connect consecutive points.
func (o *OSRM) Match(ctx context.Context, trace []geo.Point) ([]geo.Point, error) {
	resp, err := o.call(ctx, "match", trace)
	if err != nil {
		return nil, err
	}
	var out []geo.Point
	for _, m := range resp.Matchings {
		pts, err := lineFromGeometry(m.Geometry)
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1] == pts[0] {
			pts = pts[1:]
		}
		out = append(out, pts...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("osrm: no matchings in response")
	}
	return out, nil
}

func (o *OSRM) call(ctx context.Context, service string, pts []geo.Point) (*osrmResponse, error) {
	url := fmt.Sprintf("%s/%s/v1/%s/%s?overview=full&geometries=geojson",
		o.baseURL, service, o.profile, encodeCoordinates(pts))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("osrm: build request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("osrm: read response: %w", err)
	}

	var or osrmResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, fmt.Errorf("osrm: unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if or.Code != "Ok" {
		return nil, fmt.Errorf("osrm: %s: %s", or.Code, or.Message)
	}
	return &or, nil
}

// encodeCoordinates renders points as OSRM's "lng,lat;lng,lat" list.
func encodeCoordinates(pts []geo.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = strconv.FormatFloat(p.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
	}
	return strings.Join(parts, ";")
}

func lineFromGeometry(g *geojson.Geometry) ([]geo.Point, error) {
	if g == nil {
		return nil, fmt.Errorf("osrm: missing geometry")
	}
	ls, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("osrm: unexpected geometry type %q", g.Type)
	}
	if len(ls) < 2 {
		return nil, ErrShortGeometry
	}
	out := make([]geo.Point, len(ls))
	for i, c := range ls {
		out[i] = geo.Point{Lat: c.Lat(), Lng: c.Lon()}
	}
	return out, nil
}
