package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
