// README: Saved routes and the persistence interface for finished activities.
package activity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stride/internal/geo"
)

var (
	ErrNotFound   = errors.New("activity: not found")
	ErrBadRequest = errors.New("activity: bad request")
)

type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyHard     Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyModerate, DifficultyHard:
		return true
	}
	return false
}

// Route is a saved path with the metadata shown when choosing what to run.
type Route struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Difficulty     Difficulty  `json:"difficulty"`
	Tags           []string    `json:"tags"`
	Points         []geo.Point `json:"points"`
	DistanceKm     float64     `json:"distance_km"`
	ElevationGainM int         `json:"elevation_gain_m"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Querier is the subset of *pgxpool.Pool the store needs; pgxmock pools satisfy it too.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
