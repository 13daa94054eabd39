package main

import (
	"os"

	"go.uber.org/fx"

	"github.com/abdoElHodaky/lobcore/internal/app"
)

func main() {
	path := os.Getenv("LOBCORE_CONFIG")

	fxApp := fx.New(
		fx.Supply(app.ConfigPath(path)),
		app.Module,
	)

	fxApp.Run()
}
