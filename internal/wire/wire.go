//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"github.com/sevigo/patchlens/internal/app"
)

// InitializeApp builds the webhook server application.
func InitializeApp(ctx context.Context) (*app.App, error) {
	wire.Build(AppSet)
	return &app.App{}, nil
}
