// README: Bench checks; environment, path editing, live sessions, tracking fan-out and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"stride/internal/modules/activity"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// ids created by earlier checks and used by later ones
	pathID    string
	sessionID string
	recordID  string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

// Taipei riverside; consecutive anchors are roughly 100 m apart.
var anchors = []map[string]float64{
	{"lat": 25.0330, "lng": 121.5654},
	{"lat": 25.0339, "lng": 121.5654},
	{"lat": 25.0348, "lng": 121.5660},
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
		}},

		// Path editing
		{Name: "Path: create", Run: func(ctx context.Context, r *Runner) Result {
			var out struct {
				ID string `json:"id"`
			}
			res := r.expect(ctx, http.MethodPost, "/api/paths", nil, &out, http.StatusCreated)
			r.pathID = out.ID
			return res
		}},
		{Name: "Path: add anchors", Run: func(ctx context.Context, r *Runner) Result {
			if r.pathID == "" {
				return skip("no path")
			}
			var total time.Duration
			for _, a := range anchors {
				res := r.expect(ctx, http.MethodPost, "/api/paths/"+r.pathID+"/points", a, nil, http.StatusOK)
				if res.Status != "PASS" {
					return res
				}
				total += res.Latency
			}
			return Result{Status: "PASS", Latency: total / time.Duration(len(anchors))}
		}},
		{Name: "Path: move anchor", Run: func(ctx context.Context, r *Runner) Result {
			return r.pathCase(ctx, http.MethodPut, "/points/1", map[string]float64{"lat": 25.0340, "lng": 121.5650}, http.StatusOK)
		}},
		{Name: "Path: delete then undo", Run: func(ctx context.Context, r *Runner) Result {
			if res := r.pathCase(ctx, http.MethodDelete, "/points/1", nil, http.StatusOK); res.Status != "PASS" {
				return res
			}
			var out struct {
				Segments []json.RawMessage `json:"segments"`
			}
			res := r.expect(ctx, http.MethodPost, "/api/paths/"+r.pathID+"/undo", nil, &out, http.StatusOK)
			if res.Status == "PASS" && len(out.Segments) != len(anchors) {
				return fail("undo left %d segments", len(out.Segments))
			}
			return res
		}},
		{Name: "Path: index out of range -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.pathCase(ctx, http.MethodDelete, "/points/99", nil, http.StatusBadRequest)
		}},
		{Name: "Path: geojson export", Run: func(ctx context.Context, r *Runner) Result {
			return r.pathCase(ctx, http.MethodGet, "/geojson", nil, http.StatusOK)
		}},
		{Name: "Path: save as route", Run: func(ctx context.Context, r *Runner) Result {
			return r.pathCase(ctx, http.MethodPost, "/save", map[string]any{
				"name":       "bench loop",
				"difficulty": "easy",
				"tags":       []string{"bench"},
			}, http.StatusCreated)
		}},

		// Live session
		{Name: "Session: start from path", Run: func(ctx context.Context, r *Runner) Result {
			if r.pathID == "" {
				return skip("no path")
			}
			id, res := r.startSession(ctx)
			r.sessionID = id
			return res
		}},
		{Name: "Session: samples along route", Run: func(ctx context.Context, r *Runner) Result {
			if r.sessionID == "" {
				return skip("no session")
			}
			// let a default 3 s countdown finish so samples count
			time.Sleep(3500 * time.Millisecond)
			for _, a := range anchors {
				if res := r.sessionCase(ctx, "/samples", a, http.StatusAccepted); res.Status != "PASS" {
					return res
				}
			}
			return Result{Status: "PASS"}
		}},
		{Name: "Session: pause / resume", Run: func(ctx context.Context, r *Runner) Result {
			if res := r.sessionCase(ctx, "/pause", nil, http.StatusOK); res.Status != "PASS" {
				return res
			}
			if res := r.sessionCase(ctx, "/pause", nil, http.StatusConflict); res.Status != "PASS" {
				return res
			}
			return r.sessionCase(ctx, "/resume", nil, http.StatusOK)
		}},
		{Name: "Tracking: latest state in Redis", Run: checkLatestState},
		{Name: "Session: finish", Run: func(ctx context.Context, r *Runner) Result {
			if r.sessionID == "" {
				return skip("no session")
			}
			var out finishBody
			res := r.expect(ctx, http.MethodPost, "/api/sessions/"+r.sessionID+"/finish", nil, &out, http.StatusOK)
			r.recordID = out.Record.ID
			if res.Status == "PASS" {
				res.Note = fmt.Sprintf("distance=%.2fkm pace=%d:%02d", out.Record.DistanceKm, out.Record.Pace.Minutes, out.Record.Pace.Seconds)
			}
			return res
		}},
		{Name: "Session: finish is idempotent", Run: func(ctx context.Context, r *Runner) Result {
			if r.recordID == "" {
				return skip("no record")
			}
			var out finishBody
			res := r.expect(ctx, http.MethodPost, "/api/sessions/"+r.sessionID+"/finish", nil, &out, http.StatusOK)
			if res.Status == "PASS" && out.Record.ID != r.recordID {
				return fail("record %s != %s", out.Record.ID, r.recordID)
			}
			return res
		}},
		{Name: "DB: activity persisted", Run: checkActivityRow},
		{Name: "Concurrency: concurrent finish yields one record", Run: concurrentFinish},

		manualCase("Routing: provider outage falls back to straight lines", "stop OSRM and add anchors; segments report snapped=false"),
		manualCase("Stream: websocket receives updates", "connect to /api/sessions/:id/ws and post samples"),
		manualCase("Alerts: off-route push", "requires a Firebase project and a device token"),

		// Performance
		{Name: "Perf: sample ingest throughput", Run: func(ctx context.Context, r *Runner) Result {
			id, res := r.startSession(ctx)
			if res.Status != "PASS" {
				return res
			}
			return perfLoad(ctx, r, http.MethodPost, "/api/sessions/"+id+"/samples", anchors[0])
		}},
		{Name: "Perf: path read throughput", Run: func(ctx context.Context, r *Runner) Result {
			if r.pathID == "" {
				return skip("no path")
			}
			return perfLoad(ctx, r, http.MethodGet, "/api/paths/"+r.pathID, nil)
		}},
	}
}

type finishBody struct {
	Record struct {
		ID         string  `json:"id"`
		DistanceKm float64 `json:"distance_km"`
		Pace       struct {
			Minutes int `json:"minutes"`
			Seconds int `json:"seconds"`
		} `json:"average_pace"`
	} `json:"record"`
}

func (r *Runner) startSession(ctx context.Context) (string, Result) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	res := r.expect(ctx, http.MethodPost, "/api/sessions", map[string]string{"path_id": r.pathID}, &out, http.StatusCreated)
	return out.SessionID, res
}

func (r *Runner) pathCase(ctx context.Context, method, suffix string, body any, want int) Result {
	if r.pathID == "" {
		return skip("no path")
	}
	return r.expect(ctx, method, "/api/paths/"+r.pathID+suffix, body, nil, want)
}

func (r *Runner) sessionCase(ctx context.Context, suffix string, body any, want int) Result {
	if r.sessionID == "" {
		return skip("no session")
	}
	return r.expect(ctx, http.MethodPost, "/api/sessions/"+r.sessionID+suffix, body, nil, want)
}

// expect sends one request and passes when the status matches; out, if set, receives the JSON body.
func (r *Runner) expect(ctx context.Context, method, path string, body, out any, want int) Result {
	status, payload, latency, err := r.do(ctx, method, path, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != want {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return Result{Status: "FAIL", Latency: latency, Note: "decode: " + err.Error()}
		}
	}
	return Result{Status: "PASS", Latency: latency}
}

func (r *Runner) do(ctx context.Context, method, path string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	return resp.StatusCode, payload, time.Since(start), err
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return fail("%v", err)
	}
	return Result{Status: "PASS"}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return fail("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fail("%v", err)
	}
	return Result{Status: "PASS"}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return skip("apply-migration=false")
	}
	if r.db == nil {
		return fail("db not configured")
	}
	script, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return fail("%v", err)
	}
	if err := activity.Migrate(ctx, r.db, string(script)); err != nil {
		return fail("%v", err)
	}
	return Result{Status: "PASS"}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	script, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return fail("%v", err)
	}
	for _, t := range activity.Tables(string(script)) {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return fail("%v", err)
		}
		if !exists {
			return fail("missing table: %s", t)
		}
	}
	return Result{Status: "PASS"}
}

func checkLatestState(ctx context.Context, r *Runner) Result {
	if r.sessionID == "" {
		return skip("no session")
	}
	if r.redis == nil {
		return fail("redis not configured")
	}
	n, err := r.redis.Exists(ctx, "tracking:session:"+r.sessionID+":state").Result()
	if err != nil {
		return fail("%v", err)
	}
	if n != 1 {
		return fail("state key missing")
	}
	return r.expect(ctx, http.MethodGet, "/api/tracking/sessions/"+r.sessionID, nil, nil, http.StatusOK)
}

func checkActivityRow(ctx context.Context, r *Runner) Result {
	if r.recordID == "" {
		return skip("no record")
	}
	if r.db == nil {
		return fail("db not configured")
	}
	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM activities WHERE id = $1", r.recordID).Scan(&count); err != nil {
		return fail("%v", err)
	}
	if count != 1 {
		return fail("rows=%d", count)
	}
	return Result{Status: "PASS"}
}

func concurrentFinish(ctx context.Context, r *Runner) Result {
	if r.pathID == "" {
		return skip("no path")
	}
	id, res := r.startSession(ctx)
	if res.Status != "PASS" {
		return res
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out finishBody
			if res := r.expect(ctx, http.MethodPost, "/api/sessions/"+id+"/finish", nil, &out, http.StatusOK); res.Status != "PASS" {
				return
			}
			mu.Lock()
			ids[out.Record.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		return fail("distinct records=%d", len(ids))
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("callers=%d", r.cfg.Concurrency)}
}

// perfLoad hammers one endpoint for the configured duration and reports
// throughput, server errors and latency percentiles.
func perfLoad(ctx context.Context, r *Runner, method, path string, payload any) Result {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	lat := make(chan time.Duration, 1024)
	var failures atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				status, _, took, err := r.do(ctx, method, path, payload)
				switch {
				case ctx.Err() != nil:
					return
				case err != nil || status >= 500:
					failures.Add(1)
				default:
					lat <- took
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(lat)
	}()

	var samples []time.Duration
	for d := range lat {
		samples = append(samples, d)
	}
	if len(samples) == 0 {
		return fail("no requests completed")
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	pct := func(p float64) time.Duration { return samples[int(p*float64(len(samples)-1))] }
	rps := float64(len(samples)) / r.cfg.Duration.Seconds()
	return Result{
		Status:  "PASS",
		Latency: pct(0.5),
		Note:    fmt.Sprintf("rps=%.1f p95=%s p99=%s errors=%d", rps, pct(0.95), pct(0.99), failures.Load()),
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name: name,
		Run: func(context.Context, *Runner) Result {
			return skip(note)
		},
	}
}

func skip(note string) Result { return Result{Status: "SKIP", Note: note} }

func fail(format string, args ...any) Result {
	return Result{Status: "FAIL", Note: fmt.Sprintf(format, args...)}
}
