package menu

import (
	"context"

	"assetsync/internal/data"
	"assetsync/internal/manifest"
	"assetsync/internal/ui"
)

// MenuOption represents a selectable option shown to the user.
type MenuOption struct {
	Label       string
	Description string
	Handler     func(ctx context.Context) error
	Color       string
	Enabled     bool
}

// Actions are the operations the menu dispatches to. *app.Installer
// implements it.
type Actions interface {
	Install(ctx context.Context) error
	Update(ctx context.Context) error
	Verify(ctx context.Context) ([]manifest.Entry, error)
	Status(ctx context.Context) (ui.Status, error)
	History(ctx context.Context, limit int) ([]data.Run, error)
}
