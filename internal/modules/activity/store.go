// README: Activity store backed by PostgreSQL; saved routes and finished activities.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stride/internal/geo"
	"stride/internal/modules/path"
	"stride/internal/modules/session"
)

type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// SaveRoute persists a built path as a named route. Distance and elevation are
// derived from the path; a missing ID is generated.
func (s *Store) SaveRoute(ctx context.Context, r Route, p path.Path) (Route, error) {
	if r.Name == "" || len(p.Flatten()) < 2 {
		return Route{}, ErrBadRequest
	}
	if r.Difficulty == "" {
		r.Difficulty = DifficultyModerate
	}
	if !r.Difficulty.Valid() {
		return Route{}, ErrBadRequest
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	r.Points = p.Flatten()
	r.DistanceKm = math.Round(p.TotalDistanceKm()*100) / 100
	r.ElevationGainM = p.EstimatedElevationGainM()
	r.CreatedAt = time.Now().UTC()

	points, err := json.Marshal(r.Points)
	if err != nil {
		return Route{}, fmt.Errorf("marshal points: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO routes (
			id, name, description, difficulty, tags,
			points, distance_km, elevation_gain_m, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.Name, r.Description, string(r.Difficulty), r.Tags,
		points, r.DistanceKm, r.ElevationGainM, r.CreatedAt,
	)
	if err != nil {
		return Route{}, err
	}
	return r, nil
}

func (s *Store) GetRoute(ctx context.Context, id string) (Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, difficulty, tags,
		       points, distance_km, elevation_gain_m, created_at
		FROM routes
		WHERE id = $1`, id,
	)

	var r Route
	var difficulty string
	var points []byte
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &difficulty, &r.Tags,
		&points, &r.DistanceKm, &r.ElevationGainM, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Route{}, ErrNotFound
	}
	if err != nil {
		return Route{}, err
	}
	r.Difficulty = Difficulty(difficulty)
	if err := json.Unmarshal(points, &r.Points); err != nil {
		return Route{}, fmt.Errorf("unmarshal points: %w", err)
	}
	return r, nil
}

// SaveActivity implements session.RecordSink.
func (s *Store) SaveActivity(ctx context.Context, rec session.ActivityRecord) error {
	traveled, err := json.Marshal(rec.Traveled)
	if err != nil {
		return fmt.Errorf("marshal traveled: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO activities (
			id, session_id, route_id, route_name, distance_km, elapsed_seconds,
			pace_minutes, pace_seconds, traveled, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.SessionID, nullIfEmpty(rec.RouteID), rec.RouteName, rec.DistanceKm, rec.ElapsedSeconds,
		rec.AveragePace.Minutes, rec.AveragePace.Seconds, traveled, rec.StartedAt, rec.FinishedAt,
	)
	return err
}

const activityColumns = `id, session_id, COALESCE(route_id, ''), route_name, distance_km, elapsed_seconds,
		       pace_minutes, pace_seconds, traveled, started_at, finished_at`

func (s *Store) GetActivity(ctx context.Context, id string) (session.ActivityRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id)
	rec, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.ActivityRecord{}, ErrNotFound
	}
	return rec, err
}

// ListActivities returns the newest activities first, optionally for one route.
func (s *Store) ListActivities(ctx context.Context, routeID string, limit int) ([]session.ActivityRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE ($1 = '' OR route_id = $1)
		ORDER BY finished_at DESC
		LIMIT $2`, routeID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanActivity(row pgx.Row) (session.ActivityRecord, error) {
	var rec session.ActivityRecord
	var traveled []byte
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.RouteID, &rec.RouteName, &rec.DistanceKm, &rec.ElapsedSeconds,
		&rec.AveragePace.Minutes, &rec.AveragePace.Seconds, &traveled, &rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return session.ActivityRecord{}, err
	}
	if err := json.Unmarshal(traveled, &rec.Traveled); err != nil {
		return session.ActivityRecord{}, fmt.Errorf("unmarshal traveled: %w", err)
	}
	return rec, nil
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// RoutePath rebuilds a path from a saved route for use as a session reference.
func RoutePath(r Route) path.Path {
	return path.FromPolyline(append([]geo.Point(nil), r.Points...))
}
