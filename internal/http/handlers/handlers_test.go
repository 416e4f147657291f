// README: Router-level tests for path editing, live sessions, streaming and activities.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"github.com/redis/go-redis/v9"

	"stride/internal/config"
	"stride/internal/geo"
	httptransport "stride/internal/http"
	"stride/internal/modules/activity"
	"stride/internal/modules/path"
	"stride/internal/modules/session"
	"stride/internal/modules/tracking"
	"stride/internal/routing"
	"stride/internal/service"
)

type straightSnapper struct{}

func (straightSnapper) SnapSegment(_ context.Context, from, to geo.Point) routing.Snap {
	return routing.Snap{Points: []geo.Point{from, to}, Snapped: true}
}

func (straightSnapper) MatchTrace(_ context.Context, raw []geo.Point) routing.Snap {
	return routing.Snap{Points: append([]geo.Point(nil), raw...), Snapped: true}
}

type memRoutes struct {
	routes map[string]activity.Route
}

func (m *memRoutes) SaveRoute(_ context.Context, r activity.Route, p path.Path) (activity.Route, error) {
	if r.Name == "" || p.Len() < 2 {
		return activity.Route{}, activity.ErrBadRequest
	}
	r.ID = fmt.Sprintf("route-%d", len(m.routes)+1)
	r.Points = p.Flatten()
	r.DistanceKm = p.TotalDistanceKm()
	m.routes[r.ID] = r
	return r, nil
}

func (m *memRoutes) GetRoute(_ context.Context, id string) (activity.Route, error) {
	r, ok := m.routes[id]
	if !ok {
		return activity.Route{}, activity.ErrNotFound
	}
	return r, nil
}

type memActivities struct {
	recs []session.ActivityRecord
}

func (m *memActivities) SaveActivity(_ context.Context, rec session.ActivityRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memActivities) GetActivity(_ context.Context, id string) (session.ActivityRecord, error) {
	for _, r := range m.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return session.ActivityRecord{}, activity.ErrNotFound
}

func (m *memActivities) ListActivities(_ context.Context, routeID string, _ int) ([]session.ActivityRecord, error) {
	var out []session.ActivityRecord
	for _, r := range m.recs {
		if routeID == "" || r.RouteID == routeID {
			out = append(out, r)
		}
	}
	return out, nil
}

type testEnv struct {
	router     *gin.Engine
	live       *tracking.Store
	activities *memActivities
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub, err := tracking.NewHub(ctx, nil)
	if err != nil {
		t.Fatalf("hub: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	acts := &memActivities{}
	ws := service.NewWorkspace(straightSnapper{}, 20, &memRoutes{routes: map[string]activity.Route{}})
	tracker := service.NewTracker(ctx, service.TrackerDeps{Publisher: hub, Sink: acts},
		config.SessionConfig{CountdownSeconds: 0, OffRouteMeters: 50, TickInterval: time.Hour})
	t.Cleanup(func() {
		cancel()
		tracker.Wait()
	})

	live := tracking.NewStore(client)
	return &testEnv{
		router: httptransport.NewRouter(httptransport.RouterDeps{
			Workspace:  ws,
			Tracker:    tracker,
			Hub:        hub,
			Live:       live,
			Activities: acts,
		}),
		live:       live,
		activities: acts,
	}
}

func doRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type pathBody struct {
	ID             string         `json:"id"`
	Revision       uint64         `json:"revision"`
	Segments       []path.Segment `json:"segments"`
	Points         []geo.Point    `json:"points"`
	DistanceKm     float64        `json:"distance_km"`
	ElevationGainM int            `json:"elevation_gain_m"`
	CanUndo        bool           `json:"can_undo"`
}

func decodePath(t *testing.T, w *httptest.ResponseRecorder) pathBody {
	t.Helper()
	var p pathBody
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode path: %v (%s)", err, w.Body.String())
	}
	return p
}

func createPath(t *testing.T, r http.Handler, pts ...geo.Point) string {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/paths", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create path: %d", w.Code)
	}
	id := decodePath(t, w).ID
	for _, p := range pts {
		w := doRequest(r, http.MethodPost, "/api/paths/"+id+"/points", map[string]float64{"lat": p.Lat, "lng": p.Lng})
		if w.Code != http.StatusOK {
			t.Fatalf("add point: %d %s", w.Code, w.Body.String())
		}
	}
	return id
}

func east(i int) geo.Point { return geo.Point{Lat: 0, Lng: 0.001 * float64(i)} }

func TestHealth(t *testing.T) {
	env := setup(t)
	w := doRequest(env.router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("health: %d %q", w.Code, w.Body.String())
	}
}

func TestPathEditing(t *testing.T) {
	env := setup(t)
	r := env.router
	id := createPath(t, r, east(0), east(1), east(2))

	p := decodePath(t, doRequest(r, http.MethodGet, "/api/paths/"+id, nil))
	if p.Revision != 3 || len(p.Segments) != 3 || len(p.Points) != 3 || !p.CanUndo {
		t.Fatalf("unexpected path %+v", p)
	}
	if p.DistanceKm < 0.22 || p.DistanceKm > 0.23 {
		t.Fatalf("distance = %f", p.DistanceKm)
	}

	w := doRequest(r, http.MethodPut, "/api/paths/"+id+"/points/1", map[string]float64{"lat": 0.0005, "lng": 0.001})
	if w.Code != http.StatusOK || decodePath(t, w).Segments[1].Anchor.Lat != 0.0005 {
		t.Fatalf("move: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodDelete, "/api/paths/"+id+"/points/1", nil)
	if w.Code != http.StatusOK || len(decodePath(t, w).Segments) != 2 {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodPost, "/api/paths/"+id+"/undo", nil)
	if w.Code != http.StatusOK || len(decodePath(t, w).Segments) != 3 {
		t.Fatalf("undo: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodPost, "/api/paths/"+id+"/close", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close: %d", w.Code)
	}
	closed := decodePath(t, w)
	if last := closed.Segments[len(closed.Segments)-1].Anchor; last != east(0) {
		t.Fatalf("closed loop ends at %+v", last)
	}

	w = doRequest(r, http.MethodPost, "/api/paths/"+id+"/clear", nil)
	if w.Code != http.StatusOK || len(decodePath(t, w).Segments) != 0 {
		t.Fatalf("clear: %d %s", w.Code, w.Body.String())
	}
}

func TestPathStroke(t *testing.T) {
	env := setup(t)
	id := createPath(t, env.router)

	w := doRequest(env.router, http.MethodPost, "/api/paths/"+id+"/strokes", map[string]any{
		"points": []geo.Point{east(0), east(1), east(2), east(3)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("stroke: %d %s", w.Code, w.Body.String())
	}
	if p := decodePath(t, w); len(p.Points) != 4 {
		t.Fatalf("stroke points = %d", len(p.Points))
	}

	w = doRequest(env.router, http.MethodPost, "/api/paths/"+id+"/strokes", map[string]any{"points": []geo.Point{east(9)}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short stroke: expected 400, got %d", w.Code)
	}
}

func TestPathErrors(t *testing.T) {
	env := setup(t)
	r := env.router
	id := createPath(t, r, east(0))

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown path", http.MethodGet, "/api/paths/nope", nil, http.StatusNotFound},
		{"missing lng", http.MethodPost, "/api/paths/" + id + "/points", map[string]float64{"lat": 1}, http.StatusBadRequest},
		{"bad index", http.MethodDelete, "/api/paths/" + id + "/points/abc", nil, http.StatusBadRequest},
		{"index out of range", http.MethodDelete, "/api/paths/" + id + "/points/5", nil, http.StatusBadRequest},
		{"move out of range", http.MethodPut, "/api/paths/" + id + "/points/-1", map[string]float64{"lat": 0, "lng": 0}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := doRequest(r, tc.method, tc.path, tc.body); w.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
		})
	}

	fresh := createPath(t, r)
	if w := doRequest(r, http.MethodPost, "/api/paths/"+fresh+"/undo", nil); w.Code != http.StatusConflict {
		t.Fatalf("undo on fresh path: expected 409, got %d", w.Code)
	}
}

func TestPathGeoJSON(t *testing.T) {
	env := setup(t)
	id := createPath(t, env.router, east(0), east(1), east(2))

	w := doRequest(env.router, http.MethodGet, "/api/paths/"+id+"/geojson", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("geojson: %d", w.Code)
	}
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode geojson: %v", err)
	}
	if len(fc.Features) != 4 {
		t.Fatalf("features = %d, want line + 3 anchors", len(fc.Features))
	}
	if got := fc.Features[0].Geometry.GeoJSONType(); got != "LineString" {
		t.Fatalf("first feature is %s", got)
	}
	if elev := fc.Features[0].Properties.MustInt("elevation_gain_m"); elev != 3 {
		t.Fatalf("elevation = %d", elev)
	}
}

func TestSaveRouteAndStartFromIt(t *testing.T) {
	env := setup(t)
	r := env.router
	id := createPath(t, r, east(0), east(9))

	if w := doRequest(r, http.MethodPost, "/api/paths/"+id+"/save", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("save without name: expected 400, got %d", w.Code)
	}
	w := doRequest(r, http.MethodPost, "/api/paths/"+id+"/save", map[string]any{"name": "River loop", "tags": []string{"flat"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}
	var saved activity.Route
	_ = json.Unmarshal(w.Body.Bytes(), &saved)

	if w := doRequest(r, http.MethodGet, "/api/routes/"+saved.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("get route: %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/routes/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing route: expected 404, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/api/sessions", map[string]string{"route_id": saved.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("session from route: %d %s", w.Code, w.Body.String())
	}
	var u session.Update
	_ = json.Unmarshal(w.Body.Bytes(), &u)

	w = doRequest(r, http.MethodPost, "/api/sessions/"+u.SessionID+"/finish", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finish: %d", w.Code)
	}
	var fin struct {
		Record session.ActivityRecord `json:"record"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &fin)
	if fin.Record.RouteID != saved.ID || fin.Record.RouteName != "River loop" {
		t.Fatalf("record route = %q %q", fin.Record.RouteID, fin.Record.RouteName)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := setup(t)
	r := env.router
	pathID := createPath(t, r, east(0), east(9))

	w := doRequest(r, http.MethodPost, "/api/sessions", map[string]string{"path_id": pathID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	var u session.Update
	_ = json.Unmarshal(w.Body.Bytes(), &u)
	if u.Status != session.StatusActive {
		t.Fatalf("status = %s", u.Status)
	}
	base := "/api/sessions/" + u.SessionID

	for _, lng := range []float64{0.001, 0.0045} {
		if w := doRequest(r, http.MethodPost, base+"/samples", map[string]float64{"lat": 0, "lng": lng}); w.Code != http.StatusAccepted {
			t.Fatalf("sample: %d", w.Code)
		}
	}
	if w := doRequest(r, http.MethodPost, base+"/samples", map[string]float64{"lat": 0}); w.Code != http.StatusBadRequest {
		t.Fatalf("sample without lng: expected 400, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, base+"/pause", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pause: %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, base+"/pause", nil); w.Code != http.StatusConflict {
		t.Fatalf("double pause: expected 409, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, base+"/resume", nil); w.Code != http.StatusOK {
		t.Fatalf("resume: %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, base, nil)
	var snap session.Update
	_ = json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.CoveredKm <= 0 || snap.Position == nil {
		t.Fatalf("snapshot after sample: %+v", snap)
	}

	w = doRequest(r, http.MethodPost, base+"/finish", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finish: %d", w.Code)
	}
	var first struct {
		Record session.ActivityRecord `json:"record"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	w = doRequest(r, http.MethodPost, base+"/finish", nil)
	var second struct {
		Record session.ActivityRecord `json:"record"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &second)
	if w.Code != http.StatusOK || second.Record.ID != first.Record.ID {
		t.Fatalf("second finish: %d %q vs %q", w.Code, second.Record.ID, first.Record.ID)
	}
	if w := doRequest(r, http.MethodPost, base+"/pause", nil); w.Code != http.StatusConflict {
		t.Fatalf("pause after finish: expected 409, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, base+"/samples", map[string]float64{"lat": 0, "lng": 0}); w.Code != http.StatusConflict {
		t.Fatalf("sample after finish: expected 409, got %d", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/activities/"+first.Record.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get activity: %d", w.Code)
	}
	w = doRequest(r, http.MethodGet, "/api/activities", nil)
	var list struct {
		Activities []session.ActivityRecord `json:"activities"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Activities) != 1 {
		t.Fatalf("activities = %d", len(list.Activities))
	}
}

func TestSessionErrors(t *testing.T) {
	env := setup(t)
	r := env.router

	if w := doRequest(r, http.MethodPost, "/api/sessions", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("no source: expected 400, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/sessions", map[string]string{"path_id": "nope"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown path: expected 404, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/sessions/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/activities/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown activity: expected 404, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/activities?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", w.Code)
	}
}

func TestTrackingLookups(t *testing.T) {
	env := setup(t)
	pos := geo.Point{Lat: 25.0330, Lng: 121.5654}
	if err := env.live.Publish(context.Background(), session.Update{SessionID: "s1", Status: session.StatusActive, Position: &pos}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	w := doRequest(env.router, http.MethodGet, "/api/tracking/nearby?lat=25.0331&lng=121.5655&radius_km=1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"s1"`) {
		t.Fatalf("nearby: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(env.router, http.MethodGet, "/api/tracking/nearby?lat=x&lng=1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad nearby: expected 400, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodGet, "/api/tracking/sessions/s1", nil); w.Code != http.StatusOK {
		t.Fatalf("latest: %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodGet, "/api/tracking/sessions/s2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("latest missing: expected 404, got %d", w.Code)
	}
}

func TestStreamRequiresUpgrade(t *testing.T) {
	env := setup(t)
	if w := doRequest(env.router, http.MethodGet, "/api/sessions/s1/ws", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStreamDeliversSessionUpdates(t *testing.T) {
	env := setup(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	pathID := createPath(t, env.router, east(0), east(9))
	w := doRequest(env.router, http.MethodPost, "/api/sessions", map[string]string{"path_id": pathID})
	var u session.Update
	_ = json.Unmarshal(w.Body.Bytes(), &u)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + u.SessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	body := bytes.NewBufferString(`{"lat":0,"lng":0.002}`)
	resp, err := http.Post(srv.URL+"/api/sessions/"+u.SessionID+"/samples", "application/json", body)
	if err != nil {
		t.Fatalf("post sample: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got session.Update
	for got.Position == nil {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("decode update: %v", err)
		}
	}
	if got.SessionID != u.SessionID || got.Position == nil || got.Position.Lng != 0.002 {
		t.Fatalf("unexpected update %+v", got)
	}
}
