package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"googlemaps.github.io/maps"

	"stride/internal/geo"
)

func TestGoogleRouteDecodesOverviewPolyline(t *testing.T) {
	path := []maps.LatLng{{Lat: 25.0340, Lng: 121.5645}, {Lat: 25.0400, Lng: 121.5500}, {Lat: 25.0478, Lng: 121.5170}}
	var gotMode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMode = r.URL.Query().Get("mode")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"routes": []map[string]any{{
				"overview_polyline": map[string]string{"points": maps.Encode(path)},
			}},
		})
	}))
	defer srv.Close()

	g, err := NewGoogle("test-key", maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new google: %v", err)
	}
	pts, err := g.Route(context.Background(), geo.Point{Lat: 25.0340, Lng: 121.5645}, geo.Point{Lat: 25.0478, Lng: 121.5170})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if gotMode != "walking" {
		t.Fatalf("expected walking mode, got %q", gotMode)
	}
	if len(pts) != len(path) {
		t.Fatalf("expected %d points, got %d", len(path), len(pts))
	}
}

func TestNewRouter(t *testing.T) {
	cfg := testConfig()

	cfg.Provider = "osrm"
	if r, err := NewRouter(cfg); err != nil || r == nil {
		t.Fatalf("osrm provider: %v %v", r, err)
	}

	cfg.Provider = "none"
	if r, err := NewRouter(cfg); err != nil || r != nil {
		t.Fatalf("none provider should yield nil router: %v %v", r, err)
	}

	cfg.Provider = "google"
	if _, err := NewRouter(cfg); err == nil {
		t.Fatalf("google without key should fail")
	}

	cfg.Provider = "carrier-pigeon"
	if _, err := NewRouter(cfg); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}
