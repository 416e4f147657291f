// README: Workspace keeps the paths being edited and hands them to the route store on save.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"stride/internal/modules/activity"
	"stride/internal/modules/path"
)

var ErrNotFound = errors.New("service: not found")

// RouteStore persists finished paths as named routes.
type RouteStore interface {
	SaveRoute(ctx context.Context, r activity.Route, p path.Path) (activity.Route, error)
	GetRoute(ctx context.Context, id string) (activity.Route, error)
}

// Workspace is an in-memory registry of path builders keyed by id.
type Workspace struct {
	gw     path.Snapper
	depth  int
	routes RouteStore

	mu       sync.RWMutex
	builders map[string]*path.Builder
}

func NewWorkspace(gw path.Snapper, historyDepth int, routes RouteStore) *Workspace {
	return &Workspace{
		gw:       gw,
		depth:    historyDepth,
		routes:   routes,
		builders: make(map[string]*path.Builder),
	}
}

func (w *Workspace) Create() (string, *path.Builder) {
	id := uuid.NewString()
	b := path.NewBuilder(w.gw, w.depth)
	w.mu.Lock()
	w.builders[id] = b
	w.mu.Unlock()
	return id, b
}

func (w *Workspace) Get(id string) (*path.Builder, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.builders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// Discard drops a builder. Unknown ids are ignored.
func (w *Workspace) Discard(id string) {
	w.mu.Lock()
	delete(w.builders, id)
	w.mu.Unlock()
}

// Save stores the builder's current path as a route.
func (w *Workspace) Save(ctx context.Context, id string, meta activity.Route) (activity.Route, error) {
	b, err := w.Get(id)
	if err != nil {
		return activity.Route{}, err
	}
	if w.routes == nil {
		return activity.Route{}, errors.New("service: no route store configured")
	}
	return w.routes.SaveRoute(ctx, meta, b.Path())
}

// Route loads a saved route.
func (w *Workspace) Route(ctx context.Context, id string) (activity.Route, error) {
	if w.routes == nil {
		return activity.Route{}, ErrNotFound
	}
	return w.routes.GetRoute(ctx, id)
}
