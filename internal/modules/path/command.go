package path

import (
	"context"

	"stride/internal/geo"
)

// Command is one user edit. Hosts translate their input events into commands
// and apply them, so the builder never depends on a rendering surface.
type Command interface {
	Apply(ctx context.Context, b *Builder) error
}

type AddPointCommand struct {
	Point geo.Point `json:"point"`
}

type FreehandCommand struct {
	Points []geo.Point `json:"points"`
}

type MovePointCommand struct {
	Index int       `json:"index"`
	Point geo.Point `json:"point"`
}

type DeletePointCommand struct {
	Index int `json:"index"`
}

type UndoCommand struct{}

type ClearCommand struct{}

type CloseLoopCommand struct{}

func (c AddPointCommand) Apply(ctx context.Context, b *Builder) error { return b.AddPoint(ctx, c.Point) }

func (c FreehandCommand) Apply(ctx context.Context, b *Builder) error {
	return b.AddFreehandStroke(ctx, c.Points)
}

func (c MovePointCommand) Apply(ctx context.Context, b *Builder) error {
	return b.MovePoint(ctx, c.Index, c.Point)
}

func (c DeletePointCommand) Apply(ctx context.Context, b *Builder) error {
	return b.DeletePoint(ctx, c.Index)
}

func (UndoCommand) Apply(_ context.Context, b *Builder) error {
	if !b.Undo() {
		return ErrNothingToUndo
	}
	return nil
}

func (ClearCommand) Apply(_ context.Context, b *Builder) error {
	b.Clear()
	return nil
}

func (CloseLoopCommand) Apply(ctx context.Context, b *Builder) error { return b.CloseLoop(ctx) }

// Apply runs cmd against the builder.
func (b *Builder) Apply(ctx context.Context, cmd Command) error {
	return cmd.Apply(ctx, b)
}
